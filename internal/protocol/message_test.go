package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/danmuck/linkctl/internal/testutil/testlog"
)

func TestMessageRoundTrip(t *testing.T) {
	testlog.Start(t)
	msg := &Message{
		Header: Header{
			StreamID: 7,
			Type:     MessageTypeRequest,
			Flags:    FlagRemoteOpen,
		},
		Payload: []byte("ping"),
	}

	var buf bytes.Buffer
	if err := WriteMessage(&buf, msg, DefaultLimits()); err != nil {
		t.Fatalf("write message: %v", err)
	}
	got, err := ReadMessage(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if got.Header.StreamID != 7 || got.Header.Type != MessageTypeRequest || got.Header.Flags != FlagRemoteOpen {
		t.Fatalf("unexpected header: %+v", got.Header)
	}
	if got.Header.Length != 4 || string(got.Payload) != "ping" {
		t.Fatalf("unexpected payload: len=%d %q", got.Header.Length, got.Payload)
	}
}

func TestReadMessageEmptyPayload(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteMessage(&buf, &Message{Header: Header{StreamID: 1, Type: MessageTypeData, Flags: FlagNoData}}, DefaultLimits()); err != nil {
		t.Fatalf("write message: %v", err)
	}
	got, err := ReadMessage(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got.Payload))
	}
}

func TestReadMessageOversizeIsStreamCorrelated(t *testing.T) {
	testlog.Start(t)
	limits := Limits{MaxMessageBytes: 8}

	var buf bytes.Buffer
	oversize := &Message{
		Header:  Header{StreamID: 21, Type: MessageTypeRequest},
		Payload: bytes.Repeat([]byte("x"), 16),
	}
	if err := WriteMessage(&buf, oversize, DefaultLimits()); err != nil {
		t.Fatalf("write oversize: %v", err)
	}
	valid := &Message{
		Header:  Header{StreamID: 23, Type: MessageTypeRequest},
		Payload: []byte("ok"),
	}
	if err := WriteMessage(&buf, valid, limits); err != nil {
		t.Fatalf("write valid: %v", err)
	}

	_, err := ReadMessage(&buf, limits)
	he, ok := AsHeaderError(err)
	if !ok {
		t.Fatalf("expected header-correlated error, got %v", err)
	}
	if he.Header.StreamID != 21 {
		t.Fatalf("unexpected stream id: %d", he.Header.StreamID)
	}
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Fatalf("expected ErrMessageTooLarge, got %v", err)
	}

	// The oversize body was drained so the next message is still readable.
	got, err := ReadMessage(&buf, limits)
	if err != nil {
		t.Fatalf("read after oversize: %v", err)
	}
	if got.Header.StreamID != 23 || string(got.Payload) != "ok" {
		t.Fatalf("unexpected follow-up message: %+v", got)
	}
}

func TestReadMessageTruncationIsFatal(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteMessage(&buf, &Message{
		Header:  Header{StreamID: 3, Type: MessageTypeRequest},
		Payload: []byte("hello"),
	}, DefaultLimits()); err != nil {
		t.Fatalf("write message: %v", err)
	}

	cases := []struct {
		name string
		cut  int
		want error
	}{
		{name: "mid header", cut: 4, want: ErrShortHeader},
		{name: "mid body", cut: int(HeaderLen) + 2, want: ErrTruncated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadMessage(bytes.NewReader(buf.Bytes()[:tc.cut]), DefaultLimits())
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if _, ok := AsHeaderError(err); ok {
				t.Fatalf("truncation must not be stream correlated")
			}
		})
	}
}

func TestReadMessageCleanEOFIsFatal(t *testing.T) {
	testlog.Start(t)
	_, err := ReadMessage(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, ok := AsHeaderError(err); ok {
		t.Fatalf("EOF must not be stream correlated")
	}
}

func TestWriteMessageRefusesOversizePayload(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	err := WriteMessage(&buf, &Message{
		Header:  Header{StreamID: 1, Type: MessageTypeRequest},
		Payload: bytes.Repeat([]byte("x"), 32),
	}, Limits{MaxMessageBytes: 8})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no bytes should reach the wire, got %d", buf.Len())
	}
}

func TestHeaderCodec(t *testing.T) {
	testlog.Start(t)
	h := Header{Length: 128, StreamID: 42, Type: MessageTypeResponse, Flags: FlagRemoteClosed}
	got := DecodeHeader(EncodeHeader(h))
	if got != h {
		t.Fatalf("header round trip mismatch: %+v != %+v", got, h)
	}
}
