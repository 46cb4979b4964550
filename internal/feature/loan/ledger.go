package loan

import (
	"cmp"
	"slices"
	"time"

	"go-library-catalog/internal/domain"
	"go-library-catalog/pkg/utils"
)

// Books is the slice of the book registry the ledger depends on.
type Books interface {
	Find(isbn string) (domain.Book, error)
	SetAvailability(isbn string, available bool) error
}

// Users is the slice of the user registry the ledger depends on.
type Users interface {
	Find(userID string) (domain.User, error)
	Policy(role domain.Role) domain.Policy
}

type Options struct {
	// BlockOverdue 用户存在逾期未还时拒绝新借阅
	BlockOverdue bool
	IDGen        func() string
}

// Ledger owns every borrow record. Records are never deleted; the active
// index maps an ISBN to its single outstanding record.
type Ledger struct {
	books Books
	users Users
	opts  Options

	records     []*domain.BorrowRecord
	active      map[string]*domain.BorrowRecord
	byUser      map[string][]*domain.BorrowRecord
	activeCount map[string]int
	nextSeq     uint64
}

func NewLedger(books Books, users Users, opts Options) *Ledger {
	if opts.IDGen == nil {
		opts.IDGen = utils.NewID
	}
	return &Ledger{
		books:       books,
		users:       users,
		opts:        opts,
		active:      make(map[string]*domain.BorrowRecord),
		byUser:      make(map[string][]*domain.BorrowRecord),
		activeCount: make(map[string]int),
		nextSeq:     1,
	}
}

func (l *Ledger) Borrow(userID, isbn string, today time.Time) (domain.BorrowRecord, error) {
	userID, isbn = domain.Key(userID), domain.Key(isbn)
	if today.IsZero() {
		return domain.BorrowRecord{}, domain.Validation("borrow date is required")
	}
	u, err := l.users.Find(userID)
	if err != nil {
		return domain.BorrowRecord{}, domain.BusinessRule(domain.RuleUserNotFound, "user %q not found", userID)
	}
	b, err := l.books.Find(isbn)
	if err != nil {
		return domain.BorrowRecord{}, domain.BusinessRule(domain.RuleBookNotFound, "book %q not found", isbn)
	}
	if !b.Available {
		return domain.BorrowRecord{}, domain.BusinessRule(domain.RuleUnavailableBook, "book %q is not available", isbn)
	}
	policy := l.users.Policy(u.Role)
	if l.activeCount[userID] >= policy.MaxLoans {
		return domain.BorrowRecord{}, domain.BusinessRule(domain.RuleLimitExceeded,
			"user %q reached the limit of %d loans", userID, policy.MaxLoans)
	}
	if l.opts.BlockOverdue && len(l.OverdueForUser(userID, today)) > 0 {
		return domain.BorrowRecord{}, domain.BusinessRule(domain.RuleOverdueLoans, "user %q has overdue loans", userID)
	}

	// 先改可用状态，失败则不落记录
	if err := l.books.SetAvailability(isbn, false); err != nil {
		return domain.BorrowRecord{}, err
	}
	rec := &domain.BorrowRecord{
		ID:       l.opts.IDGen(),
		Seq:      l.nextSeq,
		UserID:   userID,
		ISBN:     isbn,
		IssuedAt: today,
		DueAt:    today.AddDate(0, 0, policy.LoanDays),
	}
	l.nextSeq++
	l.append(rec)
	return *rec, nil
}

func (l *Ledger) append(rec *domain.BorrowRecord) {
	l.records = append(l.records, rec)
	l.byUser[rec.UserID] = append(l.byUser[rec.UserID], rec)
	if rec.Active() {
		l.active[rec.ISBN] = rec
		l.activeCount[rec.UserID]++
	}
}

func (l *Ledger) Return(isbn string, today time.Time) (domain.BorrowRecord, error) {
	isbn = domain.Key(isbn)
	rec, ok := l.active[isbn]
	if !ok {
		return domain.BorrowRecord{}, domain.NotFound("no active loan for book %q", isbn)
	}
	if today.Before(rec.IssuedAt) {
		return domain.BorrowRecord{}, domain.Validation("return date precedes issue date")
	}
	if err := l.books.SetAvailability(isbn, true); err != nil {
		return domain.BorrowRecord{}, err
	}
	returned := today
	rec.ReturnedAt = &returned
	delete(l.active, isbn)
	if l.activeCount[rec.UserID]--; l.activeCount[rec.UserID] <= 0 {
		delete(l.activeCount, rec.UserID)
	}
	return *rec, nil
}

// Overdue lists active records due strictly before today, oldest due date first.
func (l *Ledger) Overdue(today time.Time) []domain.BorrowRecord {
	out := make([]domain.BorrowRecord, 0)
	for _, rec := range l.active {
		if rec.OverdueAt(today) {
			out = append(out, *rec)
		}
	}
	sortByDue(out)
	return out
}

func (l *Ledger) OverdueForUser(userID string, today time.Time) []domain.BorrowRecord {
	out := make([]domain.BorrowRecord, 0)
	for _, rec := range l.byUser[domain.Key(userID)] {
		if rec.OverdueAt(today) {
			out = append(out, *rec)
		}
	}
	sortByDue(out)
	return out
}

func sortByDue(recs []domain.BorrowRecord) {
	slices.SortFunc(recs, func(a, b domain.BorrowRecord) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// History returns every record of the user, closed ones included, in issue order.
func (l *Ledger) History(userID string) []domain.BorrowRecord {
	return copyRecords(l.byUser[domain.Key(userID)])
}

func (l *Ledger) Records() []domain.BorrowRecord { return copyRecords(l.records) }

func (l *Ledger) Active(isbn string) (domain.BorrowRecord, bool) {
	rec, ok := l.active[domain.Key(isbn)]
	if !ok {
		return domain.BorrowRecord{}, false
	}
	return *rec, true
}

func (l *Ledger) ActiveCount(userID string) int { return l.activeCount[domain.Key(userID)] }

func (l *Ledger) ActiveTotal() int { return len(l.active) }

func (l *Ledger) Options() Options { return l.opts }

// Restore rebuilds the ledger from records sorted by Seq. It does not touch
// book availability; the caller derives that from the active records.
func (l *Ledger) Restore(records []domain.BorrowRecord) error {
	next := NewLedger(l.books, l.users, l.opts)
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.BorrowRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	for i := range sorted {
		rec := sorted[i]
		rec.UserID, rec.ISBN = domain.Key(rec.UserID), domain.Key(rec.ISBN)
		if rec.Active() {
			if _, dup := next.active[rec.ISBN]; dup {
				return domain.Conflict("book %q has more than one active loan", rec.ISBN)
			}
		}
		if rec.Seq == 0 || rec.Seq < next.nextSeq {
			rec.Seq = next.nextSeq
		}
		if rec.ID == "" {
			rec.ID = next.opts.IDGen()
		}
		next.nextSeq = rec.Seq + 1
		next.append(&rec)
	}
	*l = *next
	return nil
}

func copyRecords(in []*domain.BorrowRecord) []domain.BorrowRecord {
	out := make([]domain.BorrowRecord, 0, len(in))
	for _, rec := range in {
		out = append(out, *rec)
	}
	return out
}
