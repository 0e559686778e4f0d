package types

import "github.com/google/uuid"

// NewQueryID generates a UUIDv7 query identifier.
// Time-ordered IDs keep inserts into qe_queries clustered.
func NewQueryID() QueryID {
	return QueryID(uuid.Must(uuid.NewV7()).String())
}

// NewRowID generates a UUIDv7 primary key for store tables.
func NewRowID() string {
	return uuid.Must(uuid.NewV7()).String()
}
