package models

import "time"

// User represents an account known to this layer. The ID is the opaque
// subject string asserted by the external identity provider; rows are
// created on first authenticated contact.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
