package domain

import "time"

// BorrowRecord 借阅记录；ReturnedAt 为 nil 表示仍在借
type BorrowRecord struct {
	ID         string     `json:"id"`
	Seq        uint64     `json:"seq"`
	UserID     string     `json:"userId"`
	ISBN       string     `json:"isbn"`
	IssuedAt   time.Time  `json:"issuedAt"`
	DueAt      time.Time  `json:"dueAt"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`
}

func (r BorrowRecord) Active() bool { return r.ReturnedAt == nil }

// OverdueAt reports whether the loan is still out and its due date is strictly before today.
func (r BorrowRecord) OverdueAt(today time.Time) bool {
	return r.Active() && r.DueAt.Before(today)
}

// Snapshot is the serializable state of a library. Indexes are not part of it.
type Snapshot struct {
	Books   []Book         `json:"books"`
	Users   []User         `json:"users"`
	Records []BorrowRecord `json:"records"`
}
