package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"

	"github.com/muurk/iotctl/internal/urls"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNotConnected indicates the session could not reach the device
	ErrTypeNotConnected ErrorType = iota
	// ErrTypeAuthFailed indicates the device rejected the supplied credentials
	ErrTypeAuthFailed
	// ErrTypeControlFailed indicates a reboot or shutdown request was rejected
	ErrTypeControlFailed
	// ErrTypeHTTP indicates any other non-2xx response
	ErrTypeHTTP
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeParse indicates a malformed device response
	ErrTypeParse
	// ErrTypeUnsupported indicates the transport cannot perform the operation
	ErrTypeUnsupported
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// ErrNotConnected matches any NotConnected DeviceError via errors.Is
var ErrNotConnected = errors.New("not connected")

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNotConnected:
		return "Not Connected"
	case ErrTypeAuthFailed:
		return "Authentication Failed"
	case ErrTypeControlFailed:
		return "Control Request Failed"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeUnsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred during a session operation
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	Address        string              // Device address (for context)
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (caused by: %v)", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrNotConnected and e is a NotConnected error
func (e *DeviceError) Is(target error) bool {
	return target == ErrNotConnected && e.Type == ErrTypeNotConnected
}

// ClassifyNetworkError analyzes a transport error and returns a more specific error type
func ClassifyNetworkError(err error, address string) *DeviceError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &DeviceError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			Address:        address,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			Address:        address,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return &DeviceError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				Address:        address,
			}
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				Address:        address,
			}
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				Address:        address,
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		return ClassifyNetworkError(urlErr.Err, address)
	}

	return &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		Address:        address,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error, address string) *DeviceError {
	classified := ClassifyNetworkError(err, address)
	if classified == nil {
		return &DeviceError{Type: ErrTypeNetwork, Message: message, Address: address}
	}
	classified.Message = message
	return classified
}

// NewNotConnectedError creates the error returned by operations on a
// session whose device is unreachable
func NewNotConnectedError(address string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeNotConnected,
		Message: "Not connected",
		Address: address,
	}
}

// NewAuthFailedError creates an authentication error carrying the response status
func NewAuthFailedError(statusCode int, address string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeAuthFailed,
		Message:    "Failed to auth",
		StatusCode: statusCode,
		Address:    address,
	}
}

// NewControlError creates a control request error carrying the response status
func NewControlError(path string, statusCode int, address string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeControlFailed,
		Message:    fmt.Sprintf("control request %s rejected", path),
		StatusCode: statusCode,
		Address:    address,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string, address string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Address:    address,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeParse,
		Message: message,
		Err:     err,
	}
}

// NewUnsupportedError creates an error for operations the transport cannot perform
func NewUnsupportedError(message string) *DeviceError {
	return &DeviceError{
		Type:    ErrTypeUnsupported,
		Message: message,
	}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// IsNotConnected checks if an error is a NotConnected error
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

// IsAuthError checks if an error is an authentication failure
func IsAuthError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeAuthFailed
}

// IsControlError checks if an error is a rejected control request
func IsControlError(err error) bool {
	devErr, ok := asDeviceError(err)
	return ok && devErr.Type == ErrTypeControlFailed
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	devErr, ok := asDeviceError(err)
	if !ok {
		return false
	}
	switch devErr.Type {
	case ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS:
		return true
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.StatusCode
	}
	return 0
}

// TroubleshootingHints returns user-facing advice for an error
func TroubleshootingHints(err error) []string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return nil
	}

	switch devErr.Type {
	case ErrTypeNotConnected:
		return []string{
			"Check that the device is powered on and booted",
			"Verify the address (Device Portal usually listens on port 8080)",
			"Make sure Device Portal is enabled on the device",
			"Device Portal setup: " + urls.DevicePortal,
		}
	case ErrTypeAuthFailed:
		return []string{
			"Check the username and password (default user is Administrator)",
			"Set IOTCTL_PASSWORD or enter the password when prompted",
		}
	case ErrTypeControlFailed:
		if devErr.StatusCode == http.StatusTemporaryRedirect {
			return []string{
				"The device ended the authenticated session",
				"Re-run the command with --user to authenticate again",
			}
		}
		return []string{
			fmt.Sprintf("The device rejected the request with HTTP %d", devErr.StatusCode),
			"Authenticate with --user if the device requires credentials",
		}
	case ErrTypeTimeout:
		return []string{
			"The device did not respond in time",
			"Try increasing --timeout",
		}
	case ErrTypeConnectionRefused:
		return []string{
			"Nothing is listening on that port",
			"Device Portal uses port 8080 on IoT Core by default",
		}
	case ErrTypeDNS:
		return []string{
			"Use the IP address instead of the hostname",
			"Try 'iotctl scan' to discover devices",
		}
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable, NetworkErrorNetworkUnreachable:
			return []string{
				"Verify you are on the same network as the device",
				"Try 'iotctl scan' to discover devices",
			}
		}
		return []string{"Check your network connection"}
	case ErrTypeParse:
		return []string{
			"The device returned an unexpected response format",
			"API reference: " + urls.DevicePortalAPI,
		}
	}
	return nil
}

// ShortMessage returns a concise, user-friendly error message
func ShortMessage(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeNotConnected:
		return "Device not connected"
	case ErrTypeAuthFailed:
		return fmt.Sprintf("Authentication failed (HTTP %d)", devErr.StatusCode)
	case ErrTypeControlFailed:
		return fmt.Sprintf("Device rejected request (HTTP %d)", devErr.StatusCode)
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection"
	case ErrTypeDNS:
		return "Cannot resolve device hostname"
	case ErrTypeHTTP:
		return fmt.Sprintf("Device error (HTTP %d)", devErr.StatusCode)
	default:
		return devErr.Message
	}
}
