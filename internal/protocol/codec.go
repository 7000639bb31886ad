package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MaxDatagramSize bounds a single control datagram. Requests never carry file
// bytes, so this is generous.
const MaxDatagramSize = 4096

var validate = validator.New()

// DecodeRequest parses and validates one control datagram. The returned
// request is nil when the payload is undecodable; a non-nil request with a
// non-nil error still carries the request id so the caller can answer with a
// MALFORMED status.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("undecodable request: %w", err)
	}
	if err := validate.Struct(&req); err != nil {
		return &req, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// DecodeResponse parses one response datagram on the client side.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("undecodable response: %w", err)
	}
	return &resp, nil
}

func EncodeRequest(req *Request) ([]byte, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return json.Marshal(req)
}

func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}
