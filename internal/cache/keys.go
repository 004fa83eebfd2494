package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActiveJobKey holds the JSON snapshot of a user's current training job.
func ActiveJobKey(userID uuid.UUID) string {
	return "lora:job:active:" + userID.String()
}

// RateLimitKey counts one API key's requests in the window starting at start.
func RateLimitKey(keyID uuid.UUID, start time.Time) string {
	return fmt.Sprintf("lora:ratelimit:%s:%d", keyID, start.Unix())
}
