package advert

// Slice returns buf[offset:offset+length]. The boolean is false when the
// requested window does not fit inside buf; no bytes are read in that case.
func Slice(buf []byte, offset, length int) ([]byte, bool) {
	if offset < 0 || length < 0 {
		return nil, false
	}
	if offset > len(buf) || length > len(buf)-offset {
		return nil, false
	}
	return buf[offset : offset+length], true
}

// cursor walks a buffer front to back. Every read goes through Slice and only
// advances when the read succeeded.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) next(n int) ([]byte, bool) {
	b, ok := Slice(c.buf, c.off, n)
	if !ok {
		return nil, false
	}
	c.off += n
	return b, true
}

func (c *cursor) octet() (byte, bool) {
	b, ok := c.next(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}
