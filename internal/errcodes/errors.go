package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	CodeUsage         = "usage"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeDuplicateFile = "duplicate_file"
	CodeTransport     = "transport"
)

// Error is a classified failure. Message is safe to show to the chat user.
type Error struct {
	Code    string
	Message string
	cause   error
}

func (err *Error) Error() string {
	if err.cause != nil {
		return err.Message + ": " + err.cause.Error()
	}
	return err.Message
}

func (err *Error) Unwrap() error {
	return err.cause
}

// Is matches on Code only, so wrapped sentinels compare equal to any error of
// the same class.
func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code
}

// Usage reports malformed command arguments.
func Usage(msg string) error {
	return &Error{Code: CodeUsage, Message: msg}
}

// Forbidden returns an error indicating the action needs administrator rights.
func Forbidden(action string) error {
	return &Error{Code: CodeForbidden, Message: action + " is not allowed."}
}

// NotFound returns an error indicating the given resource is absent.
func NotFound(resource string) error {
	return &Error{Code: CodeNotFound, Message: resource + " not found."}
}

func DuplicateFile(ref string) error {
	return &Error{Code: CodeDuplicateFile, Message: fmt.Sprintf("file %q is already catalogued", ref)}
}

// Transport wraps a failed chat API call.
func Transport(op string, cause error) error {
	return &Error{Code: CodeTransport, Message: op + " failed", cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Has reports whether err carries the given code.
func Has(err error, code string) bool {
	return CodeOf(err) == code
}
