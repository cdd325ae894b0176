// Package protocol implements the framed binary wire format shared by
// host and client. Each frame is a 4-byte big-endian length prefix
// followed by [tag:1][flags:1][body]; field order is fixed by schema,
// not self-describing.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// ErrProtocol marks a malformed or oversized frame. It terminates the
// connection it arrived on and nothing else.
var ErrProtocol = errors.New("protocol error")

// Tag identifies the message kind
type Tag uint8

const (
	TagHandshake Tag = iota + 1
	TagHandshakeAck
	TagSnapshot
	TagInput
	TagHeartbeat
	TagDisconnect
)

// Frame flags
const (
	FlagNone       uint8 = 0x00
	FlagCompressed uint8 = 0x01 // Body is LZ4-compressed
)

// Codec frames and unframes messages on a stream. The zero value is
// unusable; construct with the configured limits.
type Codec struct {
	// MaxFrame bounds the length prefix; larger frames are a
	// protocol error.
	MaxFrame uint32

	// CompressThreshold is the body size at which snapshot bodies
	// are LZ4-compressed. Zero disables compression.
	CompressThreshold int
}

// Write frames and writes one message. Snapshot bodies above the
// compression threshold are LZ4-compressed with the flag set.
func (c Codec) Write(w io.Writer, m Message) error {
	body, err := m.encode(nil)
	if err != nil {
		return err
	}
	flags := FlagNone

	if m.tag() == TagSnapshot && c.CompressThreshold > 0 && len(body) >= c.CompressThreshold {
		compressed, err := compress(body)
		if err == nil && len(compressed) < len(body) {
			body = compressed
			flags |= FlagCompressed
		}
	}

	frameLen := uint32(len(body)) + 2
	if frameLen > c.MaxFrame {
		return fmt.Errorf("%w: frame of %d bytes exceeds maximum %d", ErrProtocol, frameLen, c.MaxFrame)
	}

	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], frameLen)
	header[4] = byte(m.tag())
	header[5] = flags

	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// Read reads and decodes one message. A zero or oversized length
// prefix is a protocol error that must terminate the connection.
func (c Codec) Read(r io.Reader) (Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	frameLen := binary.BigEndian.Uint32(prefix[:])
	if frameLen == 0 {
		return nil, fmt.Errorf("%w: zero-length frame", ErrProtocol)
	}
	if frameLen > c.MaxFrame {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds maximum %d", ErrProtocol, frameLen, c.MaxFrame)
	}
	if frameLen < 2 {
		return nil, fmt.Errorf("%w: frame too short for header", ErrProtocol)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, err
	}

	tag := Tag(frame[0])
	flags := frame[1]
	body := frame[2:]

	if flags&FlagCompressed != 0 {
		decompressed, err := decompress(body, int(c.MaxFrame))
		if err != nil {
			return nil, fmt.Errorf("%w: bad compressed body: %v", ErrProtocol, err)
		}
		body = decompressed
	}

	return decodeBody(tag, body)
}

func compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(src); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(src []byte, limit int) ([]byte, error) {
	zr := lz4.NewReader(bytes.NewReader(src))
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(zr, int64(limit)+1)); err != nil {
		return nil, err
	}
	if buf.Len() > limit {
		return nil, errors.New("decompressed body exceeds frame limit")
	}
	return buf.Bytes(), nil
}
