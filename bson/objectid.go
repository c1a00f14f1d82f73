package bson

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ObjectID is a 12-byte MongoDB-style identifier: a 4-byte big-endian
// Unix timestamp, 5 bytes of process-wide random entropy, and a 3-byte
// big-endian counter that is monotonic within this process.
type ObjectID [12]byte

// processEntropy is generated once per process and reused for every
// ObjectID's random segment, following the spec's "5-byte pseudo-random"
// field — entropy is sourced from uuid.New() rather than a hand-rolled
// RNG.
var processEntropy = func() [5]byte {
	id := uuid.New()
	var e [5]byte
	copy(e[:], id[:5])
	return e
}()

// counter is seeded from a second, independent uuid so two processes
// starting in the same second don't collide, then incremented for every
// ObjectID minted.
var counter uint32 = func() uint32 {
	id := uuid.New()
	return binary.BigEndian.Uint32(id[8:12]) & 0x00FFFFFF
}()

// NewObjectID mints a fresh id using the current time, this process's
// entropy, and the next value of the process-local counter.
func NewObjectID() ObjectID {
	var id ObjectID
	binary.BigEndian.PutUint32(id[0:4], uint32(time.Now().Unix()))
	copy(id[4:9], processEntropy[:])

	n := atomic.AddUint32(&counter, 1) & 0x00FFFFFF
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}

// Hex returns the lowercase 24-character hex representation.
func (id ObjectID) Hex() string { return hex.EncodeToString(id[:]) }

// Timestamp returns the embedded creation time.
func (id ObjectID) Timestamp() time.Time {
	secs := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(secs), 0).UTC()
}

// ObjectIDFromHex parses a 24-character hex string.
func ObjectIDFromHex(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != 12 {
		return id, errInvalidObjectIDLength
	}
	copy(id[:], b)
	return id, nil
}

var errInvalidObjectIDLength = errors.New("bson: object id must decode to 12 bytes")
