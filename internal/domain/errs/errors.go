// Package errs defines the error kinds used across contractdesk's
// components, in the shape of a typed wrapper carrying a Kind.
package errs

import "fmt"

// Kind enumerates the error taxonomy named in the system's error handling
// design: some kinds are fatal to the operation that raised them, others
// (ParseWarn, SuspiciousValue) are carried as non-fatal findings.
type Kind string

const (
	UnsupportedFormat    Kind = "unsupported_format"
	Empty                Kind = "empty"
	ExtractFailed        Kind = "extract_failed"
	ParseWarn            Kind = "parse_warn"
	TemplateUnknown      Kind = "template_unknown"
	MissingRequiredClause Kind = "missing_required_clause"
	SuspiciousValue      Kind = "suspicious_value"
	ScannerUnavailable   Kind = "scanner_unavailable"
	ScannerCrashed       Kind = "scanner_crashed"
	TokenError           Kind = "token_error"
	RemoteApiError       Kind = "remote_api_error"
	FetchFailed          Kind = "fetch_failed"
	LLMError             Kind = "llm_error"
	IngestFailed         Kind = "ingest_failed"
	InvariantViolated    Kind = "invariant_violated"
	SolverTimeout        Kind = "solver_timeout"
	SolverCrashed        Kind = "solver_crashed"
	SolverInfeasible     Kind = "solver_infeasible"
	SolverUnavailable    Kind = "solver_unavailable"
	NotReady             Kind = "not_ready"
	PersistError         Kind = "persist_error"
)

// Error is the common error shape for every component: a Kind, a free-form
// Detail, and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Detail string
	Status int // populated for RemoteApiError
	Issues []string // populated for NotReady
	Err    error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind wrapping err, with a detail
// message.
func New(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// NotReadyErr builds a NotReady error carrying the failing issues.
func NotReadyErr(issues []string) *Error {
	return &Error{Kind: NotReady, Detail: "readiness check failed", Issues: issues}
}

// RemoteApiErr builds a RemoteApiError carrying the upstream HTTP status.
func RemoteApiErr(status int, detail string, err error) *Error {
	return &Error{Kind: RemoteApiError, Status: status, Detail: detail, Err: err}
}

// Is supports errors.Is by comparing Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return ""
	}
	return e.Kind
}
