package library

import (
	"go.uber.org/zap"

	"go-library-catalog/internal/domain"
	"go-library-catalog/internal/feature/book"
	"go-library-catalog/internal/feature/loan"
	"go-library-catalog/internal/feature/user"
)

// Snapshot copies the authoritative state. Safe to hand to a store after the call returns.
func (l *Library) Snapshot() *domain.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &domain.Snapshot{
		Books:   l.books.List(),
		Users:   l.users.List(),
		Records: l.loans.Records(),
	}
}

// Restore replaces the whole state with s and rebuilds every index.
// Book availability is derived from the active records, not read from s.
// Nothing changes when an error is returned.
func (l *Library) Restore(s *domain.Snapshot) error {
	if s == nil {
		return domain.Validation("nil snapshot")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	books := book.NewRegistry()
	if err := books.Restore(s.Books); err != nil {
		return err
	}
	users, err := user.NewRegistry(l.users.Policies())
	if err != nil {
		return err
	}
	if err := users.Restore(s.Users); err != nil {
		return err
	}
	for _, b := range books.List() {
		if err := books.SetAvailability(b.ISBN, true); err != nil {
			return err
		}
	}
	loans := loan.NewLedger(books, users, l.loans.Options())
	if err := loans.Restore(s.Records); err != nil {
		return err
	}
	for _, rec := range loans.Records() {
		if !rec.Active() {
			continue
		}
		if _, err := users.Find(rec.UserID); err != nil {
			return domain.Conflict("active loan of book %q references unknown user %q", rec.ISBN, rec.UserID)
		}
		if err := books.SetAvailability(rec.ISBN, false); err != nil {
			return domain.Conflict("active loan references unknown book %q", rec.ISBN)
		}
	}

	l.books, l.users, l.loans = books, users, loans
	l.log.Info("library restored",
		zap.Int("books", books.Len()), zap.Int("users", users.Len()), zap.Int("records", len(s.Records)))
	l.observe()
	return nil
}
