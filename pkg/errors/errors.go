package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

const (
	ErrCodeSchemaInvalid   ErrCode = "SCHEMA_INVALID"
	ErrCodeShapeMismatch   ErrCode = "SHAPE_MISMATCH"
	ErrCodeUnknownStep     ErrCode = "UNKNOWN_STEP"
	ErrCodeInvalidArgument ErrCode = "INVALID_ARGUMENT"
	ErrCodeIntegrity       ErrCode = "INTEGRITY"
	ErrCodeMissingFile     ErrCode = "MISSING_FILE"
	ErrCodeUnsupported     ErrCode = "UNSUPPORTED"
	ErrCodeInternal        ErrCode = "INTERNAL"
)

type ErrCode string

type ErrorInfo struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
	Detail  string  `json:"detail,omitempty"`
}

func (e ErrorInfo) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s\n%s", e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func IsErrCode(err error, code ErrCode) bool {
	if err == nil {
		return false
	}
	info := ErrorInfo{}
	if errors.As(err, &info) {
		return info.Code == code
	}
	return false
}

// FieldError is a single problem found at a location of a manifest, e.g. "inputs[0].shape".
type FieldError struct {
	Path    string
	Message string
}

func (e FieldError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

func joinFieldErrors(errs []FieldError) string {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, "  - "+e.String())
	}
	return strings.Join(lines, "\n")
}

func NewSchemaError(errs ...FieldError) ErrorInfo {
	msg := "manifest invalid"
	if len(errs) == 1 {
		msg = errs[0].String()
	} else if len(errs) > 1 {
		msg = fmt.Sprintf("manifest invalid: %d errors", len(errs))
	}
	info := ErrorInfo{Code: ErrCodeSchemaInvalid, Message: msg}
	if len(errs) > 1 {
		info.Detail = joinFieldErrors(errs)
	}
	return info
}

func NewShapeMismatchError(errs ...FieldError) ErrorInfo {
	info := NewSchemaError(errs...)
	info.Code = ErrCodeShapeMismatch
	return info
}

func NewUnknownStepError(name string) ErrorInfo {
	return ErrorInfo{Code: ErrCodeUnknownStep, Message: fmt.Sprintf("unknown processing step: %q", name)}
}

func NewInvalidArgumentError(step string, msg string) ErrorInfo {
	return ErrorInfo{Code: ErrCodeInvalidArgument, Message: fmt.Sprintf("%s: %s", step, msg)}
}

func NewIntegrityError(source string, expected, got digest.Digest) ErrorInfo {
	return ErrorInfo{
		Code:    ErrCodeIntegrity,
		Message: fmt.Sprintf("%s: digest mismatch", source),
		Detail:  fmt.Sprintf("expected %s, got %s", expected.Encoded(), got.Encoded()),
	}
}

func NewMissingFileError(source string) ErrorInfo {
	return ErrorInfo{Code: ErrCodeMissingFile, Message: fmt.Sprintf("%s: not found", source)}
}

func NewUnsupportedError(msg string) ErrorInfo {
	return ErrorInfo{Code: ErrCodeUnsupported, Message: msg}
}

func NewInternalError(err error) ErrorInfo {
	return ErrorInfo{Code: ErrCodeInternal, Message: err.Error()}
}
