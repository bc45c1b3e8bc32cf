package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	StatusOK              uint32 = 0
	StatusInternal        uint32 = 1
	StatusInvalidArgument uint32 = 2
	StatusNotFound        uint32 = 3
	StatusUnavailable     uint32 = 4
)

// Request is the payload shape of a MessageTypeRequest message.
type Request struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Payload []byte `json:"payload,omitempty"`
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.Service) == "" {
		return fmt.Errorf("%w: missing service", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Method) == "" {
		return fmt.Errorf("%w: missing method", ErrInvalidRequest)
	}
	return nil
}

// Response is the payload shape of a MessageTypeResponse message.
// Status is StatusOK on success; Message carries the failure text otherwise.
type Response struct {
	Status  uint32 `json:"status"`
	Message string `json:"message,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

func (r Response) Validate() error {
	if r.Status != StatusOK && strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: failure status without message", ErrInvalidResponse)
	}
	return nil
}

func EncodeRequest(req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(req)
}

func DecodeRequest(payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

func EncodeResponse(resp Response) ([]byte, error) {
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

func DecodeResponse(payload []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := resp.Validate(); err != nil {
		return Response{}, err
	}
	return resp, nil
}
