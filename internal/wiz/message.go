package wiz

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Method is the name of a bulb RPC method as it appears on the wire
type Method string

const (
	MethodGetPilot        Method = "getPilot"
	MethodSetPilot        Method = "setPilot"
	MethodGetSystemConfig Method = "getSystemConfig"
	MethodGetModelConfig  Method = "getModelConfig"
	MethodGetUserConfig   Method = "getUserConfig"
	MethodGetPower        Method = "getPower"
	MethodRegistration    Method = "registration"
	MethodSyncPilot       Method = "syncPilot"
	MethodFirstBeat       Method = "firstBeat"
	MethodReboot          Method = "reboot"
	MethodReset           Method = "reset"
)

// IsQuery reports whether the method only reads bulb state.
// Queries get the longer QueryTimeout; everything else is a command.
func (m Method) IsQuery() bool {
	return strings.HasPrefix(string(m), "get")
}

func (m Method) String() string {
	return string(m)
}

// Result is the "result" object of a successful response
type Result map[string]interface{}

// Request is a single bulb RPC request.
// There is no request id; replies are matched by source address and method.
type Request struct {
	Method Method                 `json:"method"`
	Params map[string]interface{} `json:"params"`
}

// ResponseError is the "error" object of a failed response
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Response is any JSON message received from a bulb: a reply to a request or
// an unsolicited push (syncPilot, firstBeat) carrying params.
type Response struct {
	Method Method                 `json:"method,omitempty"`
	Env    string                 `json:"env,omitempty"`
	Result Result                 `json:"result,omitempty"`
	Error  *ResponseError         `json:"error,omitempty"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// IsError reports whether the response carries an error object
func (r *Response) IsError() bool {
	return r.Error != nil
}

// HasResult reports whether the response carries a result object
func (r *Response) HasResult() bool {
	return r.Result != nil
}

// ErrEmptyResponse is returned when a reply carries neither result nor error
var ErrEmptyResponse = errors.New("response has neither result nor error")

// EncodeRequest serializes a request. Params always encode as an object,
// never null.
func EncodeRequest(method Method, params map[string]interface{}) ([]byte, error) {
	if method == "" {
		return nil, NewValidationError("method must not be empty")
	}
	if params == nil {
		params = map[string]interface{}{}
	}
	data, err := json.Marshal(Request{Method: method, Params: params})
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("cannot encode params for %s: %v", method, err))
	}
	return data, nil
}

// DecodeRequest parses a request datagram (used by fakes and the push listener)
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decodeObject(data, &req); err != nil {
		return nil, err
	}
	if req.Method == "" {
		return nil, NewDecodeError("request has no method", nil)
	}
	if req.Params == nil {
		req.Params = map[string]interface{}{}
	}
	return &req, nil
}

// DecodeResponse parses a datagram received from a bulb.
// It does not require result or error to be present; pushes carry params instead.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := decodeObject(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func decodeObject(data []byte, v interface{}) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return NewDecodeError("datagram is not a JSON object", nil)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return NewDecodeError("invalid JSON", err)
	}
	return nil
}
