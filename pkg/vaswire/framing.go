package vaswire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire framing: [length:u32 big-endian][payload]. Payload is UTF-8 JSON.

// MaxMessageSize bounds a single framed message (10 MiB).
// Anything larger is a protocol violation and closes the connection.
const MaxMessageSize = 10 * 1024 * 1024

var ErrMessageTooLarge = errors.New("framed message exceeds maximum size")

// ReadMessage reads one length-prefixed message.
// Returns io.EOF if the stream ends cleanly before a length prefix.
func ReadMessage(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("truncated length prefix: %w", err)
		}
		return nil, err
	}
	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("truncated payload (%v bytes expected): %w", length, err)
	}
	return payload, nil
}

// WriteMessage writes one length-prefixed message.
func WriteMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return ErrMessageTooLarge
	}
	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
