package domain

import "strings"

type Role string

const (
	RoleGuest   Role = "guest"
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

var Roles = []Role{RoleGuest, RoleStudent, RoleFaculty}

// ParseRole 大小写不敏感
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, nil
		}
	}
	return "", Validation("unknown role %q", s)
}

// Policy 角色借阅策略
type Policy struct {
	MaxLoans int `json:"maxLoans" mapstructure:"maxLoans"`
	LoanDays int `json:"loanDays" mapstructure:"loanDays"`
}

type PolicyTable map[Role]Policy

func DefaultPolicies() PolicyTable {
	return PolicyTable{
		RoleGuest:   {MaxLoans: 1, LoanDays: 7},
		RoleStudent: {MaxLoans: 5, LoanDays: 14},
		RoleFaculty: {MaxLoans: 10, LoanDays: 30},
	}
}

// Merge returns a copy of t with the entries of override applied on top.
func (t PolicyTable) Merge(override PolicyTable) PolicyTable {
	out := make(PolicyTable, len(t))
	for r, p := range t {
		out[r] = p
	}
	for r, p := range override {
		out[r] = p
	}
	return out
}

func (t PolicyTable) Validate() error {
	for _, r := range Roles {
		p, ok := t[r]
		if !ok {
			return Validation("missing policy for role %q", r)
		}
		if p.MaxLoans < 0 || p.LoanDays <= 0 {
			return Validation("invalid policy for role %q", r)
		}
	}
	return nil
}

type User struct {
	ID    string `json:"id" validate:"notblank,max=64"`
	Name  string `json:"name" validate:"notblank,max=128"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Role  Role   `json:"role"`
}
