package frame

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns at most one randomly sized chunk per Read.
type chunkReader struct {
	r   io.Reader
	rnd *rand.Rand
	max int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	n := 1 + c.rnd.Intn(c.max)
	if n < len(p) {
		p = p[:n]
	}
	return c.r.Read(p)
}

// stingyWriter accepts at most limit bytes per Write and then reports a deadline.
type stingyWriter struct {
	bytes.Buffer
	limit int
}

func (s *stingyWriter) Write(p []byte) (int, error) {
	if len(p) > s.limit {
		n, _ := s.Buffer.Write(p[:s.limit])
		return n, os.ErrDeadlineExceeded
	}
	return s.Buffer.Write(p)
}

func payloads() [][]byte {
	return [][]byte{
		{3, 23, 11, 45, 32, 11, 23, 45, 88, 99, 64, 34},
		{},
		bytes.Repeat([]byte("x"), 10000),
		[]byte("Hello world"),
		{0},
	}
}

func TestLengthPrefixed(t *testing.T) {
	b := []byte{3, 23, 11, 45, 32, 11, 23, 45, 88, 99, 64, 34}
	lp := Append(nil, b)
	assert.Equal(t, []byte{0, 0, 0, 12}, lp[:4])

	var in Inbox
	b2, err := in.ReadFrame(bytes.NewReader(lp))
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestOutboxBackpatch(t *testing.T) {
	var out Outbox
	out.Frame(func(b []byte) []byte { return append(b, "abc"...) })
	out.Frame(func(b []byte) []byte { return b })

	assert.Equal(t, []byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0, 0}, out.Pending())
	assert.Equal(t, 11, out.Len())
}

func TestRoundTripArbitraryChunking(t *testing.T) {
	var stream []byte
	for _, p := range payloads() {
		stream = Append(stream, p)
	}

	for seed := int64(0); seed < 20; seed++ {
		rnd := rand.New(rand.NewSource(seed))
		r := &chunkReader{r: bytes.NewReader(stream), rnd: rnd, max: 1 + int(seed)*7}

		var in Inbox
		for i, want := range payloads() {
			got, err := in.ReadFrame(r)
			require.NoError(t, err, "seed %d frame %d", seed, i)
			assert.Equal(t, want, got, "seed %d frame %d", seed, i)
		}
		_, err := in.ReadFrame(r)
		assert.Equal(t, io.EOF, err)
	}
}

func TestOneByteReads(t *testing.T) {
	stream := Append(Append(nil, []byte("one")), []byte("two"))
	var in Inbox
	r := iotest.OneByteReader(bytes.NewReader(stream))

	p, err := in.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "one", string(p))
	p, err = in.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "two", string(p))
}

func TestFeedAndNext(t *testing.T) {
	stream := Append(Append(nil, []byte("alpha")), []byte("beta"))

	var in Inbox
	for i := 0; i < 6; i++ {
		in.Feed(stream[i : i+1])
		_, ok, err := in.Next()
		require.NoError(t, err)
		assert.False(t, ok)
	}
	in.Feed(stream[6:])

	p, ok, err := in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", string(p))

	p, ok, err = in.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "beta", string(p))

	_, ok, _ = in.Next()
	assert.False(t, ok)
	assert.Equal(t, 0, in.Buffered())
	assert.Equal(t, io.EOF, in.EOF())
}

func TestZeroFrameAtEOF(t *testing.T) {
	var in Inbox
	r := bytes.NewReader([]byte{0, 0, 0, 0})

	p, err := in.ReadFrame(r)
	require.NoError(t, err)
	assert.Empty(t, p)

	_, err = in.ReadFrame(r)
	assert.Equal(t, io.EOF, err)
}

func TestTruncatedFrame(t *testing.T) {
	stream := Append(nil, []byte("Hello world"))

	for cut := 1; cut < len(stream); cut++ {
		var in Inbox
		_, err := in.ReadFrame(bytes.NewReader(stream[:cut]))
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("cut at %d: expected ErrTruncated, got %v", cut, err)
		}
	}
}

func TestNegativeLength(t *testing.T) {
	var in Inbox
	in.Feed([]byte{0xff, 0xff, 0xff, 0xf0, 1, 2, 3})
	_, ok, err := in.Next()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestPartialWrites(t *testing.T) {
	var out Outbox
	for _, p := range payloads() {
		p := p
		out.Frame(func(b []byte) []byte { return append(b, p...) })
	}
	total := out.Len()

	w := &stingyWriter{limit: 333}
	for out.Len() > 0 {
		before := out.Len()
		n, err := out.Flush(w)
		require.NoError(t, err)
		assert.Equal(t, before-n, out.Len())
	}
	assert.Equal(t, total, w.Len())

	var in Inbox
	for _, want := range payloads() {
		got, err := in.ReadFrame(&w.Buffer)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAppendBehindHandedOutSlice(t *testing.T) {
	var out Outbox
	out.Frame(func(b []byte) []byte { return append(b, "first"...) })
	handed := out.Pending()
	snapshot := append([]byte(nil), handed...)

	out.Frame(func(b []byte) []byte { return append(b, "second"...) })
	assert.Equal(t, snapshot, handed)

	out.Advance(len(handed))
	assert.Equal(t, Append(nil, []byte("second")), out.Pending())
	out.Advance(out.Len())
	assert.Equal(t, 0, out.Len())
}

func TestWriteErrorIsReported(t *testing.T) {
	var out Outbox
	out.Frame(func(b []byte) []byte { return append(b, 1) })
	_, err := out.Flush(errWriter{})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }
