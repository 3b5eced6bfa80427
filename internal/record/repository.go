package record

import "encoding/binary"

// Repository is the archived form of spec.md §3's Repository entity.
type Repository struct {
	ID            uint64
	Name          string
	Description   *string
	Owner         *string
	LastModified  Timestamp
	DefaultBranch *string
	Exported      bool
}

// EncodedSize returns the exact byte length EncodeRepository will produce.
func (r *Repository) EncodedSize() int {
	return 8 + 1 + timestampSize + sizeString(r.Name) +
		sizeOptString(r.Description) + sizeOptString(r.Owner) + sizeOptString(r.DefaultBranch)
}

// EncodeRepository serializes r into a freshly allocated buffer.
func EncodeRepository(r *Repository) []byte {
	buf := make([]byte, r.EncodedSize())
	binary.BigEndian.PutUint64(buf, r.ID)
	off := 8
	if r.Exported {
		buf[off] = 1
	}
	off++
	putTimestamp(buf[off:], r.LastModified)
	off += timestampSize
	off += putString(buf[off:], r.Name)
	off += putOptString(buf[off:], r.Description)
	off += putOptString(buf[off:], r.Owner)
	off += putOptString(buf[off:], r.DefaultBranch)
	return buf
}

// DecodeRepository parses a Repository out of buf. buf is not retained by
// reference inside the returned value (every field is a fresh copy); the
// caller remains free to reuse or discard buf afterward.
func DecodeRepository(buf []byte) (*Repository, error) {
	if len(buf) < 8+1+timestampSize {
		return nil, ErrTruncated
	}
	r := &Repository{ID: binary.BigEndian.Uint64(buf)}
	off := 8
	r.Exported = buf[off] != 0
	off++
	r.LastModified = getTimestamp(buf[off:])
	off += timestampSize

	name, n, err := getString(buf[off:])
	if err != nil {
		return nil, err
	}
	r.Name = name
	off += n

	desc, n, err := getOptString(buf[off:])
	if err != nil {
		return nil, err
	}
	r.Description = desc
	off += n

	owner, n, err := getOptString(buf[off:])
	if err != nil {
		return nil, err
	}
	r.Owner = owner
	off += n

	branch, n, err := getOptString(buf[off:])
	if err != nil {
		return nil, err
	}
	r.DefaultBranch = branch
	off += n

	return r, nil
}
