package models

import "github.com/google/uuid"

// Customer is a read-only reference into the customer directory.
type Customer struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Email string    `json:"email" db:"email"`
}
