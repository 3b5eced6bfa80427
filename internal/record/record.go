// Package record defines the on-disk encodings of every entity in spec.md
// §3 and the borrowed views the store facade hands back on read.
//
// Records use varint-free fixed-width fields and length-prefixed variable
// fields in a fixed order per record type (most lead with their fixed
// fields; Commit keeps its tree id as a fixed-width trailer after its
// variable fields). Decoding walks the buffer once and returns a struct whose
// fixed-width fields ([20]byte hashes, timestamps, flags) are copied
// in-place from the buffer with no allocation, and whose string fields are
// produced by a single string(buf) conversion — one copy, not a deep
// decode of a self-describing structure. That one copy per string is the
// deliberate, documented departure from true zero-copy (see DESIGN.md):
// getting allocation-free strings out of a []byte requires unsafe.String,
// and nothing elsewhere in this corpus reaches for unsafe to do it, so this
// module doesn't either.
//
// The caller owns the []byte passed to every Decode function. The store
// facade always hands over a buffer copied out of its read transaction (see
// internal/store). Decoded records hold no reference into that buffer —
// every field is copied out of it — so a record stays valid after the
// buffer is reused or discarded, including across goroutine/task suspension
// points, without needing a self-referential "cart" type.
package record

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrTruncated is returned by every Decode function when buf is shorter
// than the encoding it claims to hold.
var ErrTruncated = errors.New("record: truncated buffer")

// Timestamp is a (unix_seconds, utc_offset_seconds) pair, spec.md's
// last_modified / author / committer time representation.
type Timestamp struct {
	Seconds int64
	Offset  int32
}

// Time reconstructs a time.Time in its original offset's fixed zone.
func (t Timestamp) Time() time.Time {
	loc := time.FixedZone("", int(t.Offset))
	return time.Unix(t.Seconds, 0).In(loc)
}

func putTimestamp(buf []byte, t Timestamp) {
	binary.BigEndian.PutUint64(buf, uint64(t.Seconds))
	binary.BigEndian.PutUint32(buf[8:], uint32(t.Offset))
}

func getTimestamp(buf []byte) Timestamp {
	return Timestamp{
		Seconds: int64(binary.BigEndian.Uint64(buf)),
		Offset:  int32(binary.BigEndian.Uint32(buf[8:])),
	}
}

const timestampSize = 12

func putString(buf []byte, s string) int {
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return 4 + len(s)
}

func getString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, ErrTruncated
	}
	n := int(binary.BigEndian.Uint32(buf))
	if len(buf) < 4+n {
		return "", 0, ErrTruncated
	}
	return string(buf[4 : 4+n]), 4 + n, nil
}

func putOptString(buf []byte, s *string) int {
	if s == nil {
		buf[0] = 0
		return 1
	}
	buf[0] = 1
	return 1 + putString(buf[1:], *s)
}

func getOptString(buf []byte) (*string, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrTruncated
	}
	if buf[0] == 0 {
		return nil, 1, nil
	}
	s, n, err := getString(buf[1:])
	if err != nil {
		return nil, 0, err
	}
	return &s, 1 + n, nil
}

func sizeString(s string) int { return 4 + len(s) }

func sizeOptString(s *string) int {
	if s == nil {
		return 1
	}
	return 1 + sizeString(*s)
}
