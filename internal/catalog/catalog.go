// Package catalog lists the background templates a user can pick from.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Entry is one selectable background.
type Entry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ImageRef     string    `json:"url"`
	DisplayOrder int       `json:"displayOrder"`
	Active       bool      `json:"active"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// Lister returns active entries in display order.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

var ErrNotFound = errors.New("background not found")

// PersistenceError wraps a failure of the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Find returns the entry with the given id.
func Find(entries []Entry, id string) (Entry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}
