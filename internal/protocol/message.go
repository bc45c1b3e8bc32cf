package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderLen uint32 = 10

	MessageTypeRequest  uint8 = 0x1
	MessageTypeResponse uint8 = 0x2
	MessageTypeData     uint8 = 0x3

	FlagRemoteClosed uint8 = 0x1
	FlagRemoteOpen   uint8 = 0x2
	FlagNoData       uint8 = 0x4
)

// Header is the fixed wire header preceding every message body.
type Header struct {
	Length   uint32
	StreamID uint32
	Type     uint8
	Flags    uint8
}

// Message is one complete wire message.
type Message struct {
	Header  Header
	Payload []byte
}

// Limits constrains message decode/encode memory use.
type Limits struct {
	MaxMessageBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxMessageBytes: 4 * 1024 * 1024,
	}
}

// HeaderError is a read failure attributable to one identifiable stream.
// The connection remains synchronized and usable after it is returned.
type HeaderError struct {
	Header Header
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("stream %d: %v", e.Header.StreamID, e.Err)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// AsHeaderError reports whether err is correlated to a single stream.
// Any other non-nil read error is connection-fatal.
func AsHeaderError(err error) (*HeaderError, bool) {
	var he *HeaderError
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// ReadMessage reads one message from r.
//
// An oversized body is reported as a *HeaderError after the declared bytes
// are drained, so the caller can keep reading subsequent messages. Every
// other failure leaves the stream desynchronized and is returned as-is.
func ReadMessage(r io.Reader, limits Limits) (*Message, error) {
	var fixed [HeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: %v", ErrShortHeader, err)
		}
		return nil, err
	}
	h := DecodeHeader(fixed[:])

	if h.Length > limits.MaxMessageBytes {
		if _, err := io.CopyN(io.Discard, r, int64(h.Length)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
		return nil, &HeaderError{
			Header: h,
			Err:    fmt.Errorf("%w: %d bytes declared, limit %d", ErrMessageTooLarge, h.Length, limits.MaxMessageBytes),
		}
	}

	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
		}
	}
	return &Message{Header: h, Payload: payload}, nil
}

// WriteMessage writes one message to w. The header length field is derived
// from the payload; oversized payloads are refused before any bytes hit the
// wire.
func WriteMessage(w io.Writer, msg *Message, limits Limits) error {
	payloadLen := uint32(len(msg.Payload))
	if payloadLen > limits.MaxMessageBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, payloadLen, limits.MaxMessageBytes)
	}

	h := msg.Header
	h.Length = payloadLen
	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if payloadLen > 0 {
		if _, err := w.Write(msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	binary.BigEndian.PutUint32(buf[4:8], h.StreamID)
	buf[8] = h.Type
	buf[9] = h.Flags
	return buf
}

func DecodeHeader(b []byte) Header {
	return Header{
		Length:   binary.BigEndian.Uint32(b[0:4]),
		StreamID: binary.BigEndian.Uint32(b[4:8]),
		Type:     b[8],
		Flags:    b[9],
	}
}
