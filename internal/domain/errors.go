package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrBusinessRule = errors.New("business rule violated")
)

// Rule 借阅规则名
type Rule string

const (
	RuleUnavailableBook Rule = "unavailable_book"
	RuleUserNotFound    Rule = "user_not_found"
	RuleBookNotFound    Rule = "book_not_found"
	RuleLimitExceeded   Rule = "limit_exceeded"
	RuleOverdueLoans    Rule = "overdue_loans"
)

type Error struct {
	Kind error
	Rule Rule // only for ErrBusinessRule
	Msg  string
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s", e.Rule, e.Msg)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(format string, args ...any) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func DuplicateKey(format string, args ...any) error {
	return &Error{Kind: ErrDuplicateKey, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func BusinessRule(rule Rule, format string, args ...any) error {
	return &Error{Kind: ErrBusinessRule, Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

// RuleOf extracts the violated borrowing rule, if err carries one.
func RuleOf(err error) (Rule, bool) {
	var de *Error
	if errors.As(err, &de) && de.Rule != "" {
		return de.Rule, true
	}
	return "", false
}
