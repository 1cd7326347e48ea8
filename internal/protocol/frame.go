package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MaxCommandSize caps a single request frame.
	MaxCommandSize = 1024
	// MaxResponseSize caps a single response frame.
	MaxResponseSize = 16 << 20

	// EndOfData terminates the two-frame dirlist -a response.
	EndOfData = "EndOfData\n"
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// WriteFrame writes payload with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

// WriteString is WriteFrame for text responses.
func WriteString(w io.Writer, s string) error {
	return WriteFrame(w, []byte(s))
}

// ReadFrame reads one length-prefixed frame of at most max bytes. A clean
// close before the header surfaces as io.EOF.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	msgLen := binary.BigEndian.Uint32(lenBuf)
	if int64(msgLen) > int64(max) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, msgLen, max)
	}

	buf := make([]byte, msgLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}
