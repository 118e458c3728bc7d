package stream

import (
	"bytes"
	"fmt"
	"io"
	"iter"

	"github.com/fogfish/opts"
)

var (
	dataPrefix   = []byte("data:")
	doneSentinel = []byte("[DONE]")
)

// Diagnostic observes payloads the decoder dropped because they failed to
// parse. The decoder swallows such frames by default so one corrupt frame
// cannot kill a long-running generation; a diagnostic makes the drops
// visible without changing that policy.
type Diagnostic func(err error, payload []byte)

// Decoder turns a raw byte stream in Server-Sent-Events framing into a
// lazy, forward-only sequence of Chunks. Incoming bytes are buffered so
// frames, and multi-byte characters inside them, may be split across
// arbitrary read boundaries. The sequence ends at the [DONE] sentinel or
// at end of input, whichever comes first; it is not restartable.
type Decoder struct {
	src        io.Reader
	diag       Diagnostic
	readBuffer int

	pending []byte
	scratch []byte
	cur     Chunk
	err     error
	eof     bool
	done    bool
}

// WithDiagnostic registers a callback for dropped malformed payloads.
func WithDiagnostic(diag Diagnostic) opts.Option[Decoder] {
	return opts.Type[Decoder](func(d *Decoder) error {
		d.diag = diag
		return nil
	})
}

// WithReadBuffer sets the size of the read scratch buffer. Non-positive
// sizes are rejected when the option is applied.
func WithReadBuffer(size int) opts.Option[Decoder] {
	return opts.Type[Decoder](func(d *Decoder) error {
		if size <= 0 {
			return fmt.Errorf("read buffer size must be positive, got %d", size)
		}
		d.readBuffer = size
		return nil
	})
}

// NewDecoder wraps src, typically an open HTTP response body. Closing the
// decoder closes src when it is an io.Closer. An invalid option poisons the
// decoder: the first Next returns false and Err reports the mistake.
func NewDecoder(src io.Reader, options ...opts.Option[Decoder]) *Decoder {
	d := &Decoder{src: src, readBuffer: 4096}
	if err := opts.Apply(d, options); err != nil {
		d.err = fmt.Errorf("invalid decoder option: %w", err)
		d.done = true
	}
	d.scratch = make([]byte, d.readBuffer)
	return d
}

// Next advances to the next chunk. It returns false when the stream has
// ended, whether by sentinel, by end of input or by a transport error;
// check Err to tell the last case apart.
func (d *Decoder) Next() bool {
	if d.done || d.err != nil {
		return false
	}

	for {
		for {
			line, rest, ok := cutLine(d.pending)
			if !ok {
				break
			}
			d.pending = rest
			chunk, produced := d.decodeLine(line)
			if produced {
				d.cur = chunk
				return true
			}
			if d.done {
				// Sentinel seen; bytes after it are ignored.
				return false
			}
		}

		if d.eof {
			// End of input without a sentinel: stop quietly.
			d.done = true
			return false
		}

		n, err := d.src.Read(d.scratch)
		if n > 0 {
			d.pending = append(d.pending, d.scratch[:n]...)
		}
		if err != nil {
			d.eof = true
			if err != io.EOF {
				d.err = err
				d.done = true
				return false
			}
			// A final line may arrive without a terminating newline.
			if len(d.pending) > 0 {
				d.pending = append(d.pending, '\n')
			}
		}
	}
}

// Current returns the chunk produced by the last successful Next.
func (d *Decoder) Current() Chunk {
	return d.cur
}

// Err returns the error that ended the stream: a transport failure, or a
// construction mistake wrapped as "invalid decoder option". A stream that
// ended at the sentinel or at a clean end of input reports nil.
func (d *Decoder) Err() error {
	return d.err
}

// Close releases the underlying source when it is closeable.
func (d *Decoder) Close() error {
	d.done = true
	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// All returns a single-use iterator over the remaining chunks.
func (d *Decoder) All() iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for d.Next() {
			if !yield(d.Current()) {
				return
			}
		}
	}
}

// decodeLine processes one complete line. The second return is true when
// the line produced a chunk. Non-data framing lines, keep-alives and
// malformed payloads produce nothing; the sentinel flips done.
func (d *Decoder) decodeLine(line []byte) (Chunk, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return nil, false
	}
	if bytes.Equal(payload, doneSentinel) {
		d.done = true
		return nil, false
	}

	chunk, err := parseChunk(payload)
	if err != nil {
		if d.diag != nil {
			d.diag(err, bytes.Clone(payload))
		}
		return nil, false
	}
	return chunk, true
}

// cutLine splits buf at the first newline. ok is false when no complete
// line is buffered yet; the trailing partial line stays in rest.
func cutLine(buf []byte) (line, rest []byte, ok bool) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i], buf[i+1:], true
}
