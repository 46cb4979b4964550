// Package library is the single entry point over the book registry, the user
// registry and the loan ledger. Every exported method holds one mutex for its
// whole duration, so borrow and return never expose a state where the ledger
// and book availability disagree.
package library

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"go-library-catalog/internal/domain"
	"go-library-catalog/internal/feature/book"
	"go-library-catalog/internal/feature/loan"
	"go-library-catalog/internal/feature/user"
)

type Options struct {
	Policies     domain.PolicyTable // nil → domain.DefaultPolicies
	BlockOverdue bool
	Logger       *zap.Logger
	Metrics      *Metrics
	IDGen        func() string
}

type Library struct {
	mu      sync.Mutex
	books   *book.Registry
	users   *user.Registry
	loans   *loan.Ledger
	log     *zap.Logger
	metrics *Metrics
}

func New(o Options) (*Library, error) {
	users, err := user.NewRegistry(o.Policies)
	if err != nil {
		return nil, err
	}
	books := book.NewRegistry()
	l := &Library{
		books:   books,
		users:   users,
		loans:   loan.NewLedger(books, users, loan.Options{BlockOverdue: o.BlockOverdue, IDGen: o.IDGen}),
		log:     o.Logger,
		metrics: o.Metrics,
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	return l, nil
}

// ---------- books ----------

func (l *Library) AddBook(title, author, isbn, genre string) (domain.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, err := l.books.Add(title, author, isbn, genre)
	if err != nil {
		return domain.Book{}, err
	}
	l.log.Info("book added", zap.String("isbn", b.ISBN), zap.String("title", b.Title))
	l.observe()
	return b, nil
}

func (l *Library) RemoveBook(isbn string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.books.Remove(isbn); err != nil {
		return err
	}
	l.log.Info("book removed", zap.String("isbn", isbn))
	l.observe()
	return nil
}

func (l *Library) FindBook(isbn string) (domain.Book, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.Find(isbn)
}

func (l *Library) FindByAuthor(author string) []domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.FindByAuthor(author)
}

func (l *Library) FindByTitle(title string) []domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.FindByTitle(title)
}

func (l *Library) Search(query string) []domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.Search(query)
}

func (l *Library) Books() []domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.books.List()
}

// ---------- users ----------

func (l *Library) RegisterUser(userID, name, role, email string) (domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, err := l.users.Register(userID, name, role, email)
	if err != nil {
		return domain.User{}, err
	}
	l.log.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	l.observe()
	return u, nil
}

// RemoveUser refuses while the user still holds a loan. History stays in the ledger.
func (l *Library) RemoveUser(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.users.Find(userID); err != nil {
		return err
	}
	if n := l.loans.ActiveCount(userID); n > 0 {
		return domain.Conflict("user %q still holds %d loans", userID, n)
	}
	if err := l.users.Remove(userID); err != nil {
		return err
	}
	l.log.Info("user removed", zap.String("user_id", userID))
	l.observe()
	return nil
}

func (l *Library) FindUser(userID string) (domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users.Find(userID)
}

func (l *Library) Users() []domain.User {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users.List()
}

func (l *Library) BorrowLimit(role domain.Role) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users.BorrowLimit(role)
}

func (l *Library) Policy(role domain.Role) domain.Policy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.users.Policy(role)
}

// ---------- loans ----------

func (l *Library) Borrow(userID, isbn string, today time.Time) (domain.BorrowRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.loans.Borrow(userID, isbn, today)
	if err != nil {
		if rule, ok := domain.RuleOf(err); ok {
			l.metrics.rejected(rule)
			l.log.Info("borrow rejected",
				zap.String("user_id", userID), zap.String("isbn", isbn), zap.String("rule", string(rule)))
		}
		return domain.BorrowRecord{}, err
	}
	l.metrics.borrowed()
	l.log.Info("book borrowed",
		zap.String("user_id", userID), zap.String("isbn", isbn), zap.Time("due", rec.DueAt))
	l.observe()
	return rec, nil
}

func (l *Library) Return(isbn string, today time.Time) (domain.BorrowRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.loans.Return(isbn, today)
	if err != nil {
		return domain.BorrowRecord{}, err
	}
	l.metrics.returned()
	l.log.Info("book returned",
		zap.String("user_id", rec.UserID), zap.String("isbn", isbn), zap.Bool("late", rec.DueAt.Before(today)))
	l.observe()
	return rec, nil
}

func (l *Library) Overdue(today time.Time) []domain.BorrowRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loans.Overdue(today)
}

func (l *Library) OverdueForUser(userID string, today time.Time) ([]domain.BorrowRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.users.Find(userID); err != nil {
		return nil, err
	}
	return l.loans.OverdueForUser(userID, today), nil
}

// History 审计用：包含已归还记录；已注销用户的记录同样保留
func (l *Library) History(userID string) []domain.BorrowRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loans.History(userID)
}

func (l *Library) ActiveLoans(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loans.ActiveCount(userID)
}

func (l *Library) observe() {
	l.metrics.sizes(l.books.Len(), l.users.Len(), l.loans.ActiveTotal())
}
