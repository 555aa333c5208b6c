/*
Package frame turns a byte stream into length-prefixed frames and back.

A frame is a 4-byte big-endian signed length L followed by exactly L payload bytes.
Outbox and Inbox keep their bytes in one growing buffer each, with a cursor marking
how much has been written resp. consumed. Both tolerate a transport that accepts or
delivers only part of what was asked for.
*/
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

const (
	HeaderLength = 4
	// Frames announcing more than this are treated as corrupt.
	MaxFrameLength = 16 << 20

	minRead = 4096
)

var (
	// The stream ended with part of a frame buffered.
	ErrTruncated = errors.New("frame: stream ended inside a frame")
	ErrBadLength = errors.New("frame: invalid frame length")
)

// Outbox accumulates encoded frames until they are written.
type Outbox struct {
	buf []byte
	// buf[:sent] has been handed to the transport
	sent int
}

// Frame appends one frame. fill appends the payload to the slice it is given and
// returns the result; the length prefix is backpatched afterwards.
func (o *Outbox) Frame(fill func(b []byte) []byte) {
	mark := len(o.buf)
	o.buf = append(o.buf, 0, 0, 0, 0)
	o.buf = fill(o.buf)
	binary.BigEndian.PutUint32(o.buf[mark:], uint32(len(o.buf)-mark-HeaderLength))
}

// Len returns the number of bytes not yet written.
func (o *Outbox) Len() int {
	return len(o.buf) - o.sent
}

// Pending returns the bytes not yet written. Frames added later are appended behind
// the returned slice and never modify it, so it may be written concurrently with Frame
// calls, but not with Advance.
func (o *Outbox) Pending() []byte {
	return o.buf[o.sent:]
}

// Advance marks n more bytes as written. The buffer is reset once drained.
func (o *Outbox) Advance(n int) {
	o.sent += n
	if o.sent >= len(o.buf) {
		o.buf = o.buf[:0]
		o.sent = 0
	}
}

// Flush writes as many pending bytes as w accepts in one call. A write deadline
// expiring is not an error: the bytes that did go out are accounted for and the rest
// stay pending.
func (o *Outbox) Flush(w io.Writer) (int, error) {
	if o.Len() == 0 {
		return 0, nil
	}
	n, err := w.Write(o.Pending())
	o.Advance(n)
	if err != nil && !IsTimeout(err) {
		return n, err
	}
	return n, nil
}

// Inbox splits received bytes into frames.
type Inbox struct {
	buf []byte
	// buf[:consumed] has been returned as frames
	consumed int
}

// Buffered returns the number of received bytes not yet returned as a frame.
func (in *Inbox) Buffered() int {
	return len(in.buf) - in.consumed
}

// need is the number of bytes the current frame still lacks, or 0 if it is complete.
func (in *Inbox) need() (int, error) {
	have := in.Buffered()
	if have < HeaderLength {
		return HeaderLength - have, nil
	}
	l := int32(binary.BigEndian.Uint32(in.buf[in.consumed:]))
	if l < 0 || l > MaxFrameLength {
		return 0, fmt.Errorf("%w: %d", ErrBadLength, l)
	}
	if missing := HeaderLength + int(l) - have; missing > 0 {
		return missing, nil
	}
	return 0, nil
}

// Next returns the payload of the next complete frame, or ok == false if more bytes
// are needed. The payload aliases the internal buffer and is valid until the next
// call to Feed or ReadFrame.
func (in *Inbox) Next() (payload []byte, ok bool, err error) {
	missing, err := in.need()
	if err != nil || missing > 0 {
		return nil, false, err
	}
	l := int(binary.BigEndian.Uint32(in.buf[in.consumed:]))
	start := in.consumed + HeaderLength
	payload = in.buf[start : start+l : start+l]
	in.consumed = start + l
	if in.consumed == len(in.buf) {
		in.buf = in.buf[:0]
		in.consumed = 0
	}
	return payload, true, nil
}

// grow makes room for n more bytes, moving unconsumed bytes to the front first if
// that avoids a reallocation.
func (in *Inbox) grow(n int) {
	if len(in.buf)+n <= cap(in.buf) {
		return
	}
	if in.consumed > 0 {
		rest := copy(in.buf, in.buf[in.consumed:])
		in.buf = in.buf[:rest]
		in.consumed = 0
		if len(in.buf)+n <= cap(in.buf) {
			return
		}
	}
	bigger := make([]byte, len(in.buf), 2*cap(in.buf)+n)
	copy(bigger, in.buf)
	in.buf = bigger
}

// Feed appends bytes received from the transport.
func (in *Inbox) Feed(p []byte) {
	in.grow(len(p))
	in.buf = append(in.buf, p...)
}

// EOF reports how the stream ended: io.EOF on a frame boundary, ErrTruncated otherwise.
func (in *Inbox) EOF() error {
	if in.Buffered() != 0 {
		return fmt.Errorf("%w: %d bytes left", ErrTruncated, in.Buffered())
	}
	return io.EOF
}

// ReadFrame blocks until a whole frame has arrived from r. At end of stream it
// returns io.EOF if the stream ended between frames and ErrTruncated otherwise.
func (in *Inbox) ReadFrame(r io.Reader) ([]byte, error) {
	for {
		payload, ok, err := in.Next()
		if err != nil || ok {
			return payload, err
		}
		missing, _ := in.need()
		if missing < minRead {
			missing = minRead
		}
		in.grow(missing)
		n, err := r.Read(in.buf[len(in.buf):cap(in.buf)])
		in.buf = in.buf[:len(in.buf)+n]
		if err == io.EOF {
			if n > 0 {
				continue
			}
			return nil, in.EOF()
		} else if err != nil {
			return nil, err
		}
	}
}

// Append appends one complete frame to b.
func Append(b []byte, payload []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(payload)))
	return append(b, payload...)
}

// IsTimeout reports whether err is a deadline expiry on a net.Conn.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
