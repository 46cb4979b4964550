package ez

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	resp "go-library-catalog/internal/transport/http/response"
)

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 传输层错误（鉴权、参数格式）；业务错误走 resp.FromError
type AErr struct {
	Code int
	Msg  string
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// Action I 入参，O 出参
type Action[I any, O any] struct {
	Binder  Binder
	Handler func(c *gin.Context, in *I) (O, error)
}

// Handle binds the input, runs the action and writes the envelope.
func Handle[I any, O any](a Action[I, O]) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			r := resp.FromError(err)
			var ae *AErr
			if errors.As(err, &ae) {
				r = resp.Error(ae.Code, ae.Msg)
			}
			// 5xx 的原因只进日志（AccessLog 据 Meta 升级为 error），不回给客户端
			ge := c.Error(err)
			if r.Code >= resp.CodeServerError {
				ge.SetMeta(r.Code)
			}
			c.JSON(http.StatusOK, r)
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}
}
