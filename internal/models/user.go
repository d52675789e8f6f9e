// internal/models/user.go
package models

import "github.com/google/uuid"

// User is an account row in the users table. The live profile document in
// the document store (username plus last-known coordinates) is derived from
// this at account creation and updated by the location reporter afterwards.
type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`
}
