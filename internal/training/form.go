package training

import "sync"

// FormFields are the user inputs tied to job creation.
type FormFields struct {
	Title       string
	Description string
	TriggerWord string
	Images      []string
}

// Form holds the job creation inputs. It is cleared after a successful run
// and kept after a failure so the user can retry.
type Form struct {
	mu     sync.Mutex
	fields FormFields
	resets int
}

func NewForm(f FormFields) *Form {
	return &Form{fields: f}
}

func (f *Form) Set(fields FormFields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields.Images = append([]string(nil), fields.Images...)
	f.fields = fields
}

func (f *Form) Fields() FormFields {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.fields
	out.Images = append([]string(nil), f.fields.Images...)
	return out
}

// Reset clears all fields.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = FormFields{}
	f.resets++
}

// Resets returns how many times the form was cleared.
func (f *Form) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}
