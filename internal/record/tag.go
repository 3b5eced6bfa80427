package record

import "encoding/binary"

// Tag is the archived form of spec.md §3's Tag entity. Both fields are
// optional in the encoding. The tag indexer sets both for every tag it
// stores; lightweight tags and annotated tags that do not resolve to a
// commit get no Tag record at all (see DESIGN.md).
type Tag struct {
	Tagger *Signature
	TreeID *uint64
}

// EncodedSize returns the exact byte length EncodeTag will produce.
func (t *Tag) EncodedSize() int {
	size := 1 // tagger presence flag
	if t.Tagger != nil {
		size += t.Tagger.encodedSize()
	}
	size += 1 // tree id presence flag
	if t.TreeID != nil {
		size += 8
	}
	return size
}

// EncodeTag serializes t into a freshly allocated buffer.
func EncodeTag(t *Tag) []byte {
	buf := make([]byte, t.EncodedSize())
	off := 0
	if t.Tagger == nil {
		buf[off] = 0
		off++
	} else {
		buf[off] = 1
		off++
		off += putSignature(buf[off:], *t.Tagger)
	}
	if t.TreeID == nil {
		buf[off] = 0
		off++
	} else {
		buf[off] = 1
		off++
		binary.BigEndian.PutUint64(buf[off:], *t.TreeID)
		off += 8
	}
	return buf
}

// DecodeTag parses a Tag out of buf.
func DecodeTag(buf []byte) (*Tag, error) {
	if len(buf) < 1 {
		return nil, ErrTruncated
	}
	t := &Tag{}
	off := 0
	hasTagger := buf[off]
	off++
	if hasTagger != 0 {
		sig, n, err := getSignature(buf[off:])
		if err != nil {
			return nil, err
		}
		t.Tagger = &sig
		off += n
	}

	if len(buf) < off+1 {
		return nil, ErrTruncated
	}
	hasTree := buf[off]
	off++
	if hasTree != 0 {
		if len(buf) < off+8 {
			return nil, ErrTruncated
		}
		id := binary.BigEndian.Uint64(buf[off:])
		t.TreeID = &id
	}

	return t, nil
}

// Heads is the archived form of the reference family's value: the ordered
// list of full ref names (heads and tags) currently present in a repo.
type Heads struct {
	Refs []string
}

// EncodeHeads serializes h into a freshly allocated buffer.
func EncodeHeads(h *Heads) []byte {
	size := 4
	for _, r := range h.Refs {
		size += sizeString(r)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint32(buf, uint32(len(h.Refs)))
	off := 4
	for _, r := range h.Refs {
		off += putString(buf[off:], r)
	}
	return buf
}

// DecodeHeads parses a Heads out of buf.
func DecodeHeads(buf []byte) (*Heads, error) {
	if len(buf) < 4 {
		return nil, ErrTruncated
	}
	count := binary.BigEndian.Uint32(buf)
	off := 4
	h := &Heads{Refs: make([]string, 0, count)}
	for i := uint32(0); i < count; i++ {
		s, n, err := getString(buf[off:])
		if err != nil {
			return nil, err
		}
		h.Refs = append(h.Refs, s)
		off += n
	}
	return h, nil
}
