package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrUpdateInProgress is returned by BeginUpdate when an update is open.
	ErrUpdateInProgress = errors.New("update already in progress")
	// ErrNoUpdateInProgress is returned by EndUpdate without an open update.
	ErrNoUpdateInProgress = errors.New("no update in progress")
	// ErrNoData is returned when an operation needs a committed snapshot and
	// none exists.
	ErrNoData = errors.New("no index data")
	// ErrIndexNotFound is returned when a load is attempted against a name
	// that does not resolve on the transport.
	ErrIndexNotFound = errors.New("index does not exist")
	// ErrVectorRequired is returned when an item is inserted without a vector.
	ErrVectorRequired = errors.New("vector is required")
	// ErrNoName is returned when an index has neither a configured name nor
	// created addressing material.
	ErrNoName = errors.New("index has no name")
)

// DuplicateIDError is returned by InsertItem when the id already exists in
// the active item set.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("item with id %s already exists", e.ID)
}
