/*
Package wire implements the length-prefixed framing used by the Slynk/Swank
remote protocol.

Every frame is a 6 digit, zero padded, lowercase hex length followed by the
payload, with no separator:

	000015(:emacs-rex (+ 1 2))

The length counts the UTF-8 bytes of the payload. Payloads are opaque at
this layer; the swank package gives them meaning.
*/
package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"
)

// HeaderLen is the size of the hex length prefix.
const HeaderLen = 6

// MaxPayload is the largest payload a 6 digit hex header can describe.
const MaxPayload = 1<<24 - 1

var (
	// ErrFraming is wrapped by every read failure. Callers must treat it as
	// connection loss, not as a retryable parse error.
	ErrFraming = errors.New("wire: framing error")

	// ErrFrameTooLarge is returned when a payload cannot be described by the header.
	ErrFrameTooLarge = errors.New("wire: payload exceeds maximum frame size")
)

// Header renders the length prefix for a payload of n bytes.
func Header(n int) (string, error) {
	if n < 0 || n > MaxPayload {
		return "", fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	return fmt.Sprintf("%06x", n), nil
}

// Encode returns the complete frame for payload. The header counts the UTF-8
// bytes of payload, not its runes, so "(λ)" is framed as 000004(λ).
func Encode(payload string) ([]byte, error) {
	header, err := Header(len(payload))
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, HeaderLen+len(payload))
	frame = append(frame, header...)
	frame = append(frame, payload...)
	return frame, nil
}

// ParseHeader decodes a 6 byte hex length prefix.
func ParseHeader(header []byte) (int, error) {
	if len(header) != HeaderLen {
		return 0, fmt.Errorf("%w: header has %d bytes", ErrFraming, len(header))
	}
	n, err := strconv.ParseUint(string(header), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid length header %q", ErrFraming, header)
	}
	return int(n), nil
}

// ReadFrame reads exactly one frame from r and returns its payload.
func ReadFrame(r io.Reader) (string, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", fmt.Errorf("%w: reading header: %v", ErrFraming, err)
	}
	n, err := ParseHeader(header[:])
	if err != nil {
		return "", err
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", fmt.Errorf("%w: reading %d byte body: %v", ErrFraming, n, err)
	}
	if !utf8.Valid(body) {
		return "", fmt.Errorf("%w: payload is not valid UTF-8", ErrFraming)
	}
	return string(body), nil
}

// WriteFrame writes payload to w as a single frame.
func WriteFrame(w io.Writer, payload string) error {
	frame, err := Encode(payload)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Codec frames payloads over a connection. Decode and Encode may be called
// from different goroutines; each must only be called from one at a time.
type Codec struct {
	rw io.ReadWriteCloser
	r  *bufio.Reader
}

// NewCodec wraps rw, typically a net.Conn.
func NewCodec(rw io.ReadWriteCloser) *Codec {
	return &Codec{
		rw: rw,
		r:  bufio.NewReader(rw),
	}
}

// Decode blocks until the next frame arrives.
func (c *Codec) Decode() (string, error) {
	return ReadFrame(c.r)
}

// Encode writes one frame.
func (c *Codec) Encode(payload string) error {
	return WriteFrame(c.rw, payload)
}

// Close closes the underlying connection.
func (c *Codec) Close() error {
	return c.rw.Close()
}
