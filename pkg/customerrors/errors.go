// Package customerrors defines the errors shared by the storage layers.
// Callers match them with errors.Is; every layer wraps them with context.
package customerrors

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned when block, header and sector sizes
	// don't fit together, or an index is opened with unusable options.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned when a block, record or node that must exist
	// is missing. It signals corruption and is never retried.
	ErrNotFound = errors.New("not found")

	// ErrDataIntegrity is returned when on-disk structures contradict
	// themselves (bad lengths, chains through deleted blocks, etc).
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrMisaligned is returned when the free block stack content length
	// is not a multiple of 4.
	ErrMisaligned = errors.Wrap(ErrDataIntegrity, "misaligned free block stack")

	// ErrRecordTooLarge is returned for records or nodes above the hard cap.
	ErrRecordTooLarge = errors.Wrap(ErrDataIntegrity, "record is too large")

	// ErrChecksum is returned when a stored payload fails its checksum.
	ErrChecksum = errors.Wrap(ErrDataIntegrity, "checksum mismatch")

	// ErrDuplicateKey is returned by unique indexes on insert of an
	// existing key.
	ErrDuplicateKey = errors.New("key already exists")

	// ErrKeyNotFound should be returned from lookup operations when the
	// lookup key is not found in index/store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrOutOfRange is returned for block reads and writes outside of the
	// content region or the supplied buffer.
	ErrOutOfRange = errors.New("out of range")

	// ErrUseAfterRelease is returned when a block or storage is used after
	// it was released or closed.
	ErrUseAfterRelease = errors.New("use after release")

	// ErrUnsupported is returned for serializer combinations the node
	// layout can't express.
	ErrUnsupported = errors.New("unsupported configuration")

	// ErrReservedRecord is returned when callers try to modify a record id
	// reserved for internal bookkeeping.
	ErrReservedRecord = errors.New("reserved record id")

	// ErrInvalidOperation is returned when an operation doesn't match the
	// index mode, e.g. single-key delete on a duplicate-key index.
	ErrInvalidOperation = errors.New("invalid operation")
)
