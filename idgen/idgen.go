// Package idgen generates identifiers for chatwatch pages and events.
//
// Events carry UUIDv7 IDs so that a consumer can sort them by creation time
// without trusting the Timestamp field. Pages configured without an explicit
// ID get a short prefixed one.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is used for event IDs.
var Default Generator = UUIDv7()

// PageID is used for pages declared without an ID (-url mode, SQLite rows
// with an empty id column).
var PageID Generator = Prefixed("page_", UUIDv7())

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string and returns its canonical form.
func Parse(s string) (string, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("idgen: invalid UUID: %w", err)
	}
	return u.String(), nil
}
