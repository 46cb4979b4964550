package response

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"go-library-catalog/internal/domain"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{name: "validation", err: domain.Validation("blank title"), code: CodeBadRequest},
		{name: "not_found", err: domain.NotFound("book"), code: CodeNotFound},
		{name: "duplicate", err: domain.DuplicateKey("isbn"), code: CodeConflict},
		{name: "conflict", err: fmt.Errorf("ctx: %w", domain.Conflict("on loan")), code: CodeConflict},
		{name: "business_rule", err: domain.BusinessRule(domain.RuleLimitExceeded, "limit"), code: CodeUnprocessable},
		{name: "other", err: errors.New(`pq: relation "books" does not exist`), code: CodeServerError, msg: "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromError(tt.err)
			assert.Equal(t, tt.code, r.Code)
			want := tt.err.Error()
			if tt.msg != "" {
				want = tt.msg
			}
			assert.Equal(t, want, r.Msg)
		})
	}

	r := FromError(domain.BusinessRule(domain.RuleUnavailableBook, "x"))
	assert.Equal(t, map[string]string{"rule": "unavailable_book"}, r.Data)
}

func TestNewNeverNullData(t *testing.T) {
	assert.Equal(t, struct{}{}, New(CodeOK, "OK", nil).Data)
	assert.Equal(t, "Not Found", Error(CodeNotFound, "").Msg)
}
