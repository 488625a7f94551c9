package proto

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single encoded message. Frames beyond this are
// rejected as malformed without buffering the whole line.
const MaxFrameSize = 64 * 1024

// ErrMalformed reports a payload that could not be decoded. The stream
// itself is still usable; the bad frame has been consumed.
var ErrMalformed = errors.New("malformed message")

// Encode serializes a message as one newline-terminated JSON frame.
func Encode(m Message) []byte {
	// Message contains only strings and string slices; Marshal cannot fail.
	b, _ := json.Marshal(m)
	return append(b, '\n')
}

// Decoder recovers message frames from a byte stream. A TCP read may
// deliver half a frame or several at once; the decoder buffers
// incrementally and splits on the newline delimiter.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps a connection's read side.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// Decode blocks for the next complete frame. Undecodable frames return
// an error wrapping ErrMalformed; any other error is a transport
// failure and the stream should be abandoned.
func (d *Decoder) Decode() (Message, error) {
	line, err := d.readFrame()
	if err != nil {
		return Message{}, err
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, fmt.Errorf("%w: empty frame", ErrMalformed)
	}

	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// readFrame accumulates bytes up to the next newline. Oversized frames
// are drained to the delimiter and reported as malformed so the stream
// stays in sync.
func (d *Decoder) readFrame() ([]byte, error) {
	var frame []byte
	for {
		chunk, err := d.r.ReadSlice('\n')
		frame = append(frame, chunk...)

		if err == nil {
			if len(frame) > MaxFrameSize {
				return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformed, MaxFrameSize)
			}
			return frame, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			if len(frame) > MaxFrameSize {
				if err := d.discardLine(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrMalformed, MaxFrameSize)
			}
			continue
		}
		if errors.Is(err, io.EOF) && len(frame) > 0 {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
}

func (d *Decoder) discardLine() error {
	for {
		_, err := d.r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}
