package user

import (
	"slices"
	"strings"

	"go-library-catalog/internal/domain"
)

// Registry owns user identities and the role policy table.
type Registry struct {
	users    map[string]*domain.User
	order    []string
	policies domain.PolicyTable
}

// NewRegistry uses domain.DefaultPolicies when policies is nil.
func NewRegistry(policies domain.PolicyTable) (*Registry, error) {
	if policies == nil {
		policies = domain.DefaultPolicies()
	}
	if err := policies.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		users:    make(map[string]*domain.User),
		policies: policies,
	}, nil
}

func (r *Registry) Register(userID, name, role, email string) (domain.User, error) {
	rl, err := domain.ParseRole(role)
	if err != nil {
		return domain.User{}, err
	}
	u := domain.User{
		ID:    domain.Key(userID),
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
		Role:  rl,
	}
	if err := domain.Check(u); err != nil {
		return domain.User{}, err
	}
	if _, ok := r.users[u.ID]; ok {
		return domain.User{}, domain.DuplicateKey("user %q already exists", u.ID)
	}
	r.users[u.ID] = &u
	r.order = append(r.order, u.ID)
	return u, nil
}

func (r *Registry) Find(userID string) (domain.User, error) {
	userID = domain.Key(userID)
	u, ok := r.users[userID]
	if !ok {
		return domain.User{}, domain.NotFound("user %q not found", userID)
	}
	return *u, nil
}

// Remove 不检查借阅状态，由调用方保证该用户没有未还记录
func (r *Registry) Remove(userID string) error {
	userID = domain.Key(userID)
	if _, ok := r.users[userID]; !ok {
		return domain.NotFound("user %q not found", userID)
	}
	delete(r.users, userID)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == userID })
	return nil
}

func (r *Registry) List() []domain.User {
	out := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.users[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.users) }

func (r *Registry) Policy(role domain.Role) domain.Policy { return r.policies[role] }

func (r *Registry) BorrowLimit(role domain.Role) int { return r.policies[role].MaxLoans }

// LoanPeriod is the loan length in days.
func (r *Registry) LoanPeriod(role domain.Role) int { return r.policies[role].LoanDays }

func (r *Registry) Restore(users []domain.User) error {
	next := &Registry{users: make(map[string]*domain.User), policies: r.policies}
	for _, u := range users {
		u.ID = domain.Key(u.ID)
		if _, err := domain.ParseRole(string(u.Role)); err != nil {
			return err
		}
		if err := domain.Check(u); err != nil {
			return err
		}
		if _, ok := next.users[u.ID]; ok {
			return domain.DuplicateKey("user %q already exists", u.ID)
		}
		next.users[u.ID] = &u
		next.order = append(next.order, u.ID)
	}
	*r = *next
	return nil
}

func (r *Registry) Policies() domain.PolicyTable { return domain.PolicyTable{}.Merge(r.policies) }
