package models

import "time"

// Principal is a registered vault user. Authentication itself lives at the
// request envelope; the core only needs identity and existence.
type Principal struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	CreatedAt   time.Time `json:"createdAt"`
}
