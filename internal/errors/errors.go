package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusUnprocessableEntity,
	CodeAborted:            http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
	CodePermissionDenied:   http.StatusForbidden,
	CodeResourceExhausted:  http.StatusTooManyRequests,
}

// Violation is a single broken authoring or submission rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

type Error struct {
	Code       Code        `json:"code"`
	Message    string      `json:"message"`
	Violations []Violation `json:"violations,omitempty"`
	err        error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if len(e.Violations) > 0 {
		vs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			vs = append(vs, v.String())
		}
		s += fmt.Sprintf(", violations: [%s]", strings.Join(vs, "; "))
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// GRPCStatus carries the violations in the status message, "message: field: reason; field: reason".
func (e *Error) GRPCStatus() *status.Status {
	msg := e.Message
	if len(e.Violations) > 1 {
		vs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			vs = append(vs, v.String())
		}
		msg += ": " + strings.Join(vs, "; ")
	}
	return status.New(codes.Code(e.Code), msg)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// HasCode reports whether err carries a coded error with the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Validation reports authoring or input rules that were broken. The caller must block the save.
func Validation(vs ...Violation) *Error {
	msg := "validation failed"
	if len(vs) == 1 {
		msg = vs[0].String()
	}
	return New(CodeInvalidArgument, WithMessagef("%s", msg), WithViolations(vs...))
}

// Storage wraps a persistence failure. Callers may retry, nothing is retried here.
func Storage(op string, err error) *Error {
	return New(CodeUnavailable, WithMessagef("storage: %s failed", op), WithCause(err))
}

func NotFound(format string, args ...any) *Error {
	return New(CodeNotFound, WithMessagef(format, args...))
}

// Incomplete reports questions left without a selection. Nothing is persisted.
func Incomplete(questionIDs ...string) *Error {
	vs := make([]Violation, 0, len(questionIDs))
	for _, id := range questionIDs {
		vs = append(vs, Violation{Field: id, Message: "answer required"})
	}
	return New(CodeFailedPrecondition, WithMessagef("answer required"), WithViolations(vs...))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithViolations(vs ...Violation) Option {
	return optionFunc(func(e *Error) {
		e.Violations = append(e.Violations, vs...)
	})
}
