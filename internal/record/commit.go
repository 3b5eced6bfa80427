package record

import "encoding/binary"

// Signature is an author- or committer-like record: name, email and time.
type Signature struct {
	Name  string
	Email string
	Time  Timestamp
}

func (s Signature) encodedSize() int {
	return sizeString(s.Name) + sizeString(s.Email) + timestampSize
}

func putSignature(buf []byte, s Signature) int {
	off := putString(buf, s.Name)
	off += putString(buf[off:], s.Email)
	putTimestamp(buf[off:], s.Time)
	return off + timestampSize
}

func getSignature(buf []byte) (Signature, int, error) {
	var s Signature
	name, n, err := getString(buf)
	if err != nil {
		return s, 0, err
	}
	s.Name = name
	off := n

	email, n, err := getString(buf[off:])
	if err != nil {
		return s, 0, err
	}
	s.Email = email
	off += n

	if len(buf) < off+timestampSize {
		return s, 0, ErrTruncated
	}
	s.Time = getTimestamp(buf[off:])
	off += timestampSize

	return s, off, nil
}

// Commit is the archived form of spec.md §3's Commit entity.
type Commit struct {
	Hash      [20]byte
	Summary   string
	Message   string
	Author    Signature
	Committer Signature
	TreeID    uint64
}

// EncodedSize returns the exact byte length EncodeCommit will produce.
func (c *Commit) EncodedSize() int {
	return 20 + sizeString(c.Summary) + sizeString(c.Message) +
		c.Author.encodedSize() + c.Committer.encodedSize() + 8
}

// EncodeCommit serializes c into a freshly allocated buffer.
func EncodeCommit(c *Commit) []byte {
	buf := make([]byte, c.EncodedSize())
	off := copy(buf, c.Hash[:])
	off += putString(buf[off:], c.Summary)
	off += putString(buf[off:], c.Message)
	off += putSignature(buf[off:], c.Author)
	off += putSignature(buf[off:], c.Committer)
	binary.BigEndian.PutUint64(buf[off:], c.TreeID)
	return buf
}

// DecodeCommit parses a Commit out of buf.
func DecodeCommit(buf []byte) (*Commit, error) {
	if len(buf) < 20 {
		return nil, ErrTruncated
	}
	c := &Commit{}
	copy(c.Hash[:], buf[:20])
	off := 20

	summary, n, err := getString(buf[off:])
	if err != nil {
		return nil, err
	}
	c.Summary = summary
	off += n

	message, n, err := getString(buf[off:])
	if err != nil {
		return nil, err
	}
	c.Message = message
	off += n

	author, n, err := getSignature(buf[off:])
	if err != nil {
		return nil, err
	}
	c.Author = author
	off += n

	committer, n, err := getSignature(buf[off:])
	if err != nil {
		return nil, err
	}
	c.Committer = committer
	off += n

	if len(buf) < off+8 {
		return nil, ErrTruncated
	}
	c.TreeID = binary.BigEndian.Uint64(buf[off:])

	return c, nil
}

// CommitCount is the archived form of the commit-count family's value: a
// dense sequence count for one (repo_id, ref) pair.
type CommitCount uint64

// EncodeCommitCount serializes n as an 8-byte big-endian integer.
func EncodeCommitCount(n uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return buf
}

// DecodeCommitCount parses a commit-count value.
func DecodeCommitCount(buf []byte) (uint64, error) {
	if len(buf) < 8 {
		return 0, ErrTruncated
	}
	return binary.BigEndian.Uint64(buf), nil
}
