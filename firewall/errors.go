package firewall

import (
	"fmt"

	"emperror.dev/errors"
)

const (
	// ErrServiceUnavailable is returned when the policy service could not be
	// reached, instantiated or queried.
	ErrServiceUnavailable = errors.Sentinel("firewall policy service unavailable")

	// ErrMutationFailed is returned when the policy service rejected a
	// create, delete, modify or submit call.
	ErrMutationFailed = errors.Sentinel("firewall policy rejected the change")

	// ErrNotFound marks a lookup that did not find a rule. It is not a
	// failure of the authorize operation.
	ErrNotFound = errors.Sentinel("firewall rule not found")
)

// HRESULT values reported by the backends themselves, so failures that do not
// come from a COM call read the same way as the ones that do.
const (
	CodeNotImplemented uint32 = 0x80004001
	CodeNoInterface    uint32 = 0x80004002
	CodeFail           uint32 = 0x80004005
	CodeFileNotFound   uint32 = 0x80070002
	CodeAccessDenied   uint32 = 0x80070005
	CodeInvalidArg     uint32 = 0x80070057
)

// StatusError is a failed policy call together with the status code the
// policy service returned for it.
type StatusError struct {
	Op   string
	Code uint32
	Kind error
	Err  error
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s failed: %s", e.Op, FormatCode(e.Code))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the taxonomy sentinel of this error.
func (e *StatusError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unavailable returns a StatusError of kind ErrServiceUnavailable.
func Unavailable(op string, code uint32, err error) error {
	return &StatusError{Op: op, Code: code, Kind: ErrServiceUnavailable, Err: err}
}

// Rejected returns a StatusError of kind ErrMutationFailed.
func Rejected(op string, code uint32, err error) error {
	return &StatusError{Op: op, Code: code, Kind: ErrMutationFailed, Err: err}
}

// NotFound returns a StatusError of kind ErrNotFound.
func NotFound(op string, code uint32) error {
	return &StatusError{Op: op, Code: code, Kind: ErrNotFound}
}

// FormatCode renders a status code the way Windows tools print HRESULTs.
func FormatCode(code uint32) string {
	return fmt.Sprintf("0x%08X", code)
}

// StatusOf extracts the failing operation and status code from err. Errors
// that did not come from a policy call report CodeFail.
func StatusOf(err error) (op string, code uint32) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Op, se.Code
	}
	return "", CodeFail
}
