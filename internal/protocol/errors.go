package protocol

import "errors"

var (
	ErrShortHeader     = errors.New("protocol: short message header")
	ErrMessageTooLarge = errors.New("protocol: message too large")
	ErrTruncated       = errors.New("protocol: truncated message body")
	ErrInvalidRequest  = errors.New("protocol: invalid request")
	ErrInvalidResponse = errors.New("protocol: invalid response")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)
