package service

import "fmt"

// NotFoundError is returned when a requested resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// OwnershipError is returned when the acting user does not own the record
// being mutated. No store mutation happens when this is returned.
type OwnershipError struct {
	Resource string
	ID       int64
	ActorID  string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("%s %d does not belong to user %q", e.Resource, e.ID, e.ActorID)
}

// ValidationError is returned when request data fails validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for %q: %s", e.Field, e.Message)
	}
	return e.Message
}

// StorageError wraps a persistence backend failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
