// Package repository implements SQL persistence for every aggregate.
//
// Repositories are built over a database.Querier, so a service can construct them
// over *sql.DB for reads or over the *sql.Tx of a business operation for writes.
package repository

import (
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
