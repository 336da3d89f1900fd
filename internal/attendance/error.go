package attendance

import (
	"errors"
	"fmt"
	"net/http"
)

// ===== Error model (lends_new の DomainError と同型 + 種別) =====

type Kind string

const (
	KindStateViolation Kind = "STATE_VIOLATION"
	KindInvalidInput   Kind = "INVALID_INPUT"
	KindStore          Kind = "STORE"
)

type Code string

const (
	CodeAlreadyCheckedIn       Code = "ALREADY_CHECKED_IN"
	CodeAlreadyCheckedOut      Code = "ALREADY_CHECKED_OUT"
	CodeNotCheckedIn           Code = "NOT_CHECKED_IN"
	CodeNoActiveSession        Code = "NO_ACTIVE_SESSION"
	CodeBreakAlreadyOpen       Code = "BREAK_ALREADY_OPEN"
	CodeBreakNotFound          Code = "BREAK_NOT_FOUND"
	CodeBreakAlreadyClosed     Code = "BREAK_ALREADY_CLOSED"
	CodeInvalidInstant         Code = "INVALID_INSTANT"
	CodeInvalidBreakWindow     Code = "INVALID_BREAK_WINDOW"
	CodeInvalidArgument        Code = "INVALID_ARGUMENT"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeMutationInProgress     Code = "MUTATION_IN_PROGRESS"
	CodeUnauthenticated        Code = "UNAUTHENTICATED"
	CodeForbidden              Code = "FORBIDDEN"
	CodeInternal               Code = "INTERNAL"
)

type DomainError struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is: コードが一致すれば同じエラーとみなす（メッセージは問わない）
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func stateErr(code Code, msg string) *DomainError {
	return &DomainError{Kind: KindStateViolation, Code: code, Message: msg}
}

func inputErr(code Code, msg string) *DomainError {
	return &DomainError{Kind: KindInvalidInput, Code: code, Message: msg}
}

// errors.Is 用の番兵
var (
	ErrAlreadyCheckedIn       = stateErr(CodeAlreadyCheckedIn, "already checked in today")
	ErrAlreadyCheckedOut      = stateErr(CodeAlreadyCheckedOut, "already checked out today")
	ErrNotCheckedIn           = stateErr(CodeNotCheckedIn, "not checked in")
	ErrNoActiveSession        = stateErr(CodeNoActiveSession, "no active session")
	ErrBreakAlreadyOpen       = stateErr(CodeBreakAlreadyOpen, "a break is already in progress")
	ErrBreakNotFound          = stateErr(CodeBreakNotFound, "break not found")
	ErrBreakAlreadyClosed     = stateErr(CodeBreakAlreadyClosed, "break already ended")
	ErrInvalidInstant         = inputErr(CodeInvalidInstant, "invalid instant")
	ErrInvalidBreakWindow     = inputErr(CodeInvalidBreakWindow, "break end precedes its start")
	ErrConcurrentModification = &DomainError{Kind: KindStore, Code: CodeConcurrentModification, Message: "record was modified concurrently, please retry"}
	ErrMutationInProgress     = &DomainError{Kind: KindStore, Code: CodeMutationInProgress, Message: "another update for this record is in progress"}
)

func ErrInvalid(msg string) *DomainError { return inputErr(CodeInvalidArgument, msg) }

func ErrForbidden(msg string) *DomainError {
	return &DomainError{Kind: KindStateViolation, Code: CodeForbidden, Message: msg}
}

func ErrInternal(msg string, cause error) *DomainError {
	return &DomainError{Kind: KindStore, Code: CodeInternal, Message: msg, Err: cause}
}

func toHTTPStatus(err error) int {
	var de *DomainError
	if errors.As(err, &de) {
		switch de.Code {
		case CodeForbidden:
			return http.StatusForbidden
		case CodeBreakNotFound:
			return http.StatusNotFound
		case CodeInternal:
			return http.StatusInternalServerError
		}
		switch de.Kind {
		case KindInvalidInput:
			return http.StatusBadRequest
		case KindStateViolation, KindStore:
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}
