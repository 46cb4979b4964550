package response

import (
	"errors"

	"go-library-catalog/internal/domain"
)

type Resp struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// New 保证 data 不为 null
func New(code int, msg string, data interface{}) Resp {
	if data == nil {
		data = struct{}{}
	}
	return Resp{Code: code, Msg: msg, Data: data}
}

func OK(data interface{}) Resp {
	return New(CodeOK, CodeMsgMap[CodeOK], data)
}

// Error 可以传自定义 msg 覆盖默认
func Error(code int, customMsg string) Resp {
	msg := CodeMsgMap[code]
	if customMsg != "" {
		msg = customMsg
	}
	return New(code, msg, struct{}{})
}

// FromError maps a library error to its envelope. Borrowing rule violations
// carry the rule name in data so clients can branch on it. Anything outside
// the domain taxonomy gets the generic 500 message; the caller logs the cause.
func FromError(err error) Resp {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return Error(CodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return Error(CodeNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateKey), errors.Is(err, domain.ErrConflict):
		return Error(CodeConflict, err.Error())
	case errors.Is(err, domain.ErrBusinessRule):
		rule, _ := domain.RuleOf(err)
		return New(CodeUnprocessable, err.Error(), map[string]string{"rule": string(rule)})
	default:
		return Error(CodeServerError, "")
	}
}
