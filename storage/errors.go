package storage

import "errors"

// Sentinel errors surfaced by the storage core. Callers should match them
// with errors.Is; wrapped context is added with fmt.Errorf("...: %w", ...).
var (
	// ErrCorruptPage is returned when a page image fails its checksum or
	// has the wrong length. The operation that triggered it must not be
	// retried without reopening the database.
	ErrCorruptPage = errors.New("storage: corrupt page")

	// ErrCorruptWAL is returned when a WAL record fails its CRC or the WAL
	// header is malformed. The log is truncated at the first bad record.
	ErrCorruptWAL = errors.New("storage: corrupt wal record")

	// ErrPageFull is returned when a slotted page cannot fit a record.
	// Space held by deleted or superseded records is reclaimed only by
	// Compact.
	ErrPageFull = errors.New("storage: page full")

	// ErrInvalidArgument flags a bad collection name or an oversized
	// document/key/value/batch before any mutation happens.
	ErrInvalidArgument = errors.New("storage: invalid argument")

	// ErrNotFound flags a missing collection, index, or record.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateKey is returned when an insert or update would create a
	// second entry for a key already present in a unique index.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrReadOnly is returned when a write is attempted on a database
	// opened read-only.
	ErrReadOnly = errors.New("storage: database is read-only")

	// ErrDegraded names the state Pager.Degraded reports, which a failed
	// flush sets; the caller must reopen the database. The Pager's
	// operations do not return it.
	ErrDegraded = errors.New("storage: database handle is degraded, reopen required")
)
