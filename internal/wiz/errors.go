package wiz

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a socket-level failure (resolve, dial, write, read)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates the bulb never answered before the deadline
	ErrTypeTimeout
	// ErrTypeProtocol indicates the bulb answered with an error object
	ErrTypeProtocol
	// ErrTypeDecode indicates replies arrived but none could be decoded
	ErrTypeDecode
	// ErrTypeValidation indicates the request was rejected before sending
	ErrTypeValidation
	// ErrTypeCanceled indicates the caller's context was cancelled
	ErrTypeCanceled
)

// Protocol error codes sent by bulbs (JSON-RPC 2.0 numbering)
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// ErrMethodNotFound matches protocol errors with code -32601 via errors.Is.
// Older firmware answers this for getModelConfig and getPower.
var ErrMethodNotFound = errors.New("method not found")

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeProtocol:
		return "Protocol Error"
	case ErrTypeDecode:
		return "Decode Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeCanceled:
		return "Canceled"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// CodeName returns the name of a known protocol error code
func CodeName(code int) string {
	switch code {
	case CodeParseError:
		return "parse error"
	case CodeInvalidRequest:
		return "invalid request"
	case CodeMethodNotFound:
		return "method not found"
	case CodeInvalidParams:
		return "invalid params"
	case CodeInternalError:
		return "internal error"
	default:
		return fmt.Sprintf("code %d", code)
	}
}

// DeviceError represents an error that occurred while talking to a bulb
type DeviceError struct {
	Type        ErrorType // Category of error
	Message     string    // Human-readable error message
	Code        int       // Protocol error code (ErrTypeProtocol only)
	Method      Method    // Method of the failed call
	Destination string    // Bulb address (for context)
	Attempts    int       // Datagrams sent before the call ended
	Err         error     // Underlying error (if any)
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	msg := e.Message
	if e.Method != "" {
		msg = fmt.Sprintf("%s %s", e.Method, msg)
	}
	if e.Destination != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Destination)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match protocol codes against sentinel errors
func (e *DeviceError) Is(target error) bool {
	return target == ErrMethodNotFound && e.Type == ErrTypeProtocol && e.Code == CodeMethodNotFound
}

// ClassifyNetworkError wraps a socket error, recognising timeouts
func ClassifyNetworkError(err error, destination string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) {
		return &DeviceError{
			Type:        ErrTypeTimeout,
			Message:     "request timed out",
			Destination: destination,
			Err:         err,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:        ErrTypeNetwork,
			Message:     fmt.Sprintf("cannot resolve %s", dnsErr.Name),
			Destination: destination,
			Err:         err,
		}
	}

	return &DeviceError{
		Type:        ErrTypeNetwork,
		Message:     "network error occurred",
		Destination: destination,
		Err:         err,
	}
}

// isConnRefused reports an ICMP port-unreachable surfaced on a connected UDP socket
func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// NewNetworkError creates a network-level error
func NewNetworkError(message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, "")
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &DeviceError{
		Type:    ErrTypeNetwork,
		Message: message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeTimeout,
		Message: message,
	}
}

// NewProtocolError creates an error from a bulb's error object
func NewProtocolError(code int, message string) *DeviceError {
	if message == "" {
		message = CodeName(code)
	}
	return &DeviceError{
		Type:    ErrTypeProtocol,
		Message: message,
		Code:    code,
	}
}

// NewDecodeError creates a decode error
func NewDecodeError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeDecode,
		Message: message,
		Err:     err,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeValidation,
		Message: message,
	}
}

// NewCanceledError wraps the context error of a cancelled call
func NewCanceledError(err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeCanceled,
		Message: "request canceled",
		Err:     err,
	}
}

func errorType(err error) (ErrorType, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeNetwork
}

// IsTimeoutError checks if an error is a timeout
func IsTimeoutError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeTimeout
}

// IsProtocolError checks if an error came from a bulb's error object
func IsProtocolError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeProtocol
}

// IsDecodeError checks if an error is a decode error
func IsDecodeError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeDecode
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeValidation
}

// IsCanceledError checks if a call was cancelled by its caller
func IsCanceledError(err error) bool {
	t, ok := errorType(err)
	return ok && t == ErrTypeCanceled
}

// IsRetryable checks if repeating the call could succeed.
// Protocol and validation errors are deterministic.
func IsRetryable(err error) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	return t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeDecode
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The bulb did not respond in time.",
			"Troubleshooting:",
			"  • Check that the bulb is powered at the wall switch",
			"  • Verify you're on the same network and subnet as the bulb",
			"  • Check that local communication is enabled in the WiZ app",
			"  • Try increasing the timeout duration",
		}, "\n")

	case ErrTypeNetwork:
		return strings.Join([]string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Verify the bulb IP address is correct",
			"  • Check that UDP port 38899 is not blocked by a firewall",
			"  • Ensure you're connected to the correct network",
		}, "\n")

	case ErrTypeProtocol:
		if devErr.Code == CodeMethodNotFound {
			return strings.Join([]string{
				fmt.Sprintf("The bulb does not support %s.", devErr.Method),
				"Older firmware lacks some methods.",
				"Troubleshooting:",
				"  • Check for a firmware update in the WiZ app",
			}, "\n")
		}
		return fmt.Sprintf("The bulb rejected the request (%s). Check the request parameters.", CodeName(devErr.Code))

	case ErrTypeDecode:
		return strings.Join([]string{
			"The bulb answered but the reply could not be decoded.",
			"This may indicate a firmware issue or another device on the same address.",
			"Troubleshooting:",
			"  • Run with --log-level debug to see the raw datagrams",
			"  • Try rebooting the bulb",
		}, "\n")

	case ErrTypeValidation:
		return "The request is invalid. Check the error message for details."

	case ErrTypeCanceled:
		return "The request was cancelled before the bulb answered."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Bulb not responding (timeout)"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeProtocol:
		return fmt.Sprintf("Bulb error %d: %s", devErr.Code, devErr.Message)
	case ErrTypeDecode:
		return "Failed to decode bulb response"
	case ErrTypeCanceled:
		return "Request cancelled"
	default:
		return devErr.Message
	}
}

// outcomeLabel maps an error to the outcome label used in metrics
func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	t, ok := errorType(err)
	if !ok {
		return "error"
	}
	switch t {
	case ErrTypeNetwork:
		return "network_error"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeProtocol:
		return "protocol_error"
	case ErrTypeDecode:
		return "decode_error"
	case ErrTypeValidation:
		return "validation_error"
	case ErrTypeCanceled:
		return "canceled"
	default:
		return "error"
	}
}
