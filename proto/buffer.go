package proto

import (
	"encoding/binary"
	"fmt"
)

/*
Primitive encodings. Integers are big-endian; buffers, strings and lists are an int32
length followed by the contents. A negative length stands for an absent value.
*/

func appendInt32(b []byte, v int32) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(v))
}

func appendInt64(b []byte, v int64) []byte {
	return binary.BigEndian.AppendUint64(b, uint64(v))
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

// nil is written as absent (-1), an empty non-nil slice as length 0.
func appendBuffer(b []byte, v []byte) []byte {
	if v == nil {
		return appendInt32(b, -1)
	}
	b = appendInt32(b, int32(len(v)))
	return append(b, v...)
}

func appendString(b []byte, s string) []byte {
	b = appendInt32(b, int32(len(s)))
	return append(b, s...)
}

func appendStrings(b []byte, ss []string) []byte {
	b = appendInt32(b, int32(len(ss)))
	for _, s := range ss {
		b = appendString(b, s)
	}
	return b
}

func appendACL(b []byte, acl []ACL) []byte {
	b = appendInt32(b, int32(len(acl)))
	for _, a := range acl {
		b = appendInt32(b, a.Perms)
		b = appendString(b, a.Scheme)
		b = appendString(b, a.ID)
	}
	return b
}

func appendStat(b []byte, s *Stat) []byte {
	b = appendInt64(b, s.Czxid)
	b = appendInt64(b, s.Mzxid)
	b = appendInt64(b, s.Ctime)
	b = appendInt64(b, s.Mtime)
	b = appendInt32(b, s.Version)
	b = appendInt32(b, s.Cversion)
	b = appendInt32(b, s.Aversion)
	b = appendInt64(b, s.EphemeralOwner)
	b = appendInt32(b, s.DataLength)
	b = appendInt32(b, s.NumChildren)
	return appendInt64(b, s.Pzxid)
}

// decoder reads primitives off a byte slice. The first underrun sticks: every later
// read returns a zero value and err stays ErrMalformed.
type decoder struct {
	buf []byte
	off int
	err error
}

func newDecoder(buf []byte) *decoder {
	return &decoder{buf: buf}
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.remaining() < n {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, d.off, d.remaining())
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) int32() int32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(p))
}

func (d *decoder) int64() int64 {
	p := d.take(8)
	if p == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(p))
}

func (d *decoder) bool() bool {
	p := d.take(1)
	if p == nil {
		return false
	}
	return p[0] != 0
}

// Negative length decodes as nil.
func (d *decoder) buffer() []byte {
	n := d.int32()
	if d.err != nil || n < 0 {
		return nil
	}
	p := d.take(int(n))
	if p == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, p)
	return out
}

func (d *decoder) string() string {
	n := d.int32()
	if d.err != nil || n < 0 {
		return ""
	}
	return string(d.take(int(n)))
}

func (d *decoder) strings() []string {
	n := d.int32()
	if d.err != nil || n < 0 {
		return nil
	}
	// every entry needs at least its length prefix
	if int(n) > d.remaining()/4 {
		d.err = fmt.Errorf("%w: list of %d entries in %d bytes", ErrMalformed, n, d.remaining())
		return nil
	}
	out := make([]string, 0, n)
	for i := int32(0); i < n && d.err == nil; i++ {
		out = append(out, d.string())
	}
	return out
}

func (d *decoder) acl() []ACL {
	n := d.int32()
	if d.err != nil || n < 0 {
		return nil
	}
	if int(n) > d.remaining()/12 {
		d.err = fmt.Errorf("%w: acl of %d entries in %d bytes", ErrMalformed, n, d.remaining())
		return nil
	}
	out := make([]ACL, 0, n)
	for i := int32(0); i < n && d.err == nil; i++ {
		out = append(out, ACL{Perms: d.int32(), Scheme: d.string(), ID: d.string()})
	}
	return out
}

func (d *decoder) stat() Stat {
	return Stat{
		Czxid:          d.int64(),
		Mzxid:          d.int64(),
		Ctime:          d.int64(),
		Mtime:          d.int64(),
		Version:        d.int32(),
		Cversion:       d.int32(),
		Aversion:       d.int32(),
		EphemeralOwner: d.int64(),
		DataLength:     d.int32(),
		NumChildren:    d.int32(),
		Pzxid:          d.int64(),
	}
}
