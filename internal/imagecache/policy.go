package imagecache

import "container/list"

// EvictionPolicy decides which tracked key leaves the cache first.
// Implementations need not be safe for concurrent use; Cache serializes calls.
type EvictionPolicy interface {
	// Touch records an access to key, adding it when new.
	Touch(key string)
	// Remove forgets key. Unknown keys are ignored.
	Remove(key string)
	// Victim returns the key to evict next.
	Victim() (string, bool)
	Len() int
	Reset()
}

type lru struct {
	order *list.List
	items map[string]*list.Element
}

// NewLRU returns a least-recently-used policy.
func NewLRU() EvictionPolicy {
	return &lru{order: list.New(), items: make(map[string]*list.Element)}
}

func (l *lru) Touch(key string) {
	if el, ok := l.items[key]; ok {
		l.order.MoveToFront(el)
		return
	}
	l.items[key] = l.order.PushFront(key)
}

func (l *lru) Remove(key string) {
	if el, ok := l.items[key]; ok {
		l.order.Remove(el)
		delete(l.items, key)
	}
}

func (l *lru) Victim() (string, bool) {
	el := l.order.Back()
	if el == nil {
		return "", false
	}
	return el.Value.(string), true
}

func (l *lru) Len() int { return l.order.Len() }

func (l *lru) Reset() {
	l.order.Init()
	l.items = make(map[string]*list.Element)
}
