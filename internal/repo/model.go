package repo

import (
	"time"

	"go-library-catalog/internal/domain"
)

type BookModel struct {
	ISBN      string `gorm:"primaryKey;size:32"`
	Position  int    `gorm:"not null;index"`
	Title     string `gorm:"size:500;not null"`
	Author    string `gorm:"size:255;not null"`
	Genre     string `gorm:"size:64"`
	UpdatedAt time.Time
}

func (BookModel) TableName() string { return "books" }

type UserModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Position  int    `gorm:"not null;index"`
	Name      string `gorm:"size:128;not null"`
	Email     string `gorm:"size:255"`
	Role      string `gorm:"size:16;not null"`
	UpdatedAt time.Time
}

func (UserModel) TableName() string { return "users" }

// BorrowRecordModel 借阅历史，只追加、不删除
type BorrowRecordModel struct {
	ID         string     `gorm:"primaryKey;size:32"`
	Seq        uint64     `gorm:"uniqueIndex;not null"`
	UserID     string     `gorm:"size:64;index;not null"`
	ISBN       string     `gorm:"size:32;index;not null"`
	IssuedAt   time.Time  `gorm:"not null"`
	DueAt      time.Time  `gorm:"not null"`
	ReturnedAt *time.Time `gorm:"index"`
}

func (BorrowRecordModel) TableName() string { return "borrow_records" }

func Models() []any { return []any{&BookModel{}, &UserModel{}, &BorrowRecordModel{}} }

func toModels(s *domain.Snapshot) ([]BookModel, []UserModel, []BorrowRecordModel) {
	books := make([]BookModel, 0, len(s.Books))
	for i, b := range s.Books {
		books = append(books, BookModel{ISBN: b.ISBN, Position: i, Title: b.Title, Author: b.Author, Genre: b.Genre})
	}
	users := make([]UserModel, 0, len(s.Users))
	for i, u := range s.Users {
		users = append(users, UserModel{ID: u.ID, Position: i, Name: u.Name, Email: u.Email, Role: string(u.Role)})
	}
	recs := make([]BorrowRecordModel, 0, len(s.Records))
	for _, r := range s.Records {
		recs = append(recs, BorrowRecordModel{
			ID: r.ID, Seq: r.Seq, UserID: r.UserID, ISBN: r.ISBN,
			IssuedAt: r.IssuedAt, DueAt: r.DueAt, ReturnedAt: r.ReturnedAt,
		})
	}
	return books, users, recs
}

// fromModels 可用状态不入库，由 Library.Restore 根据未还记录推导
func fromModels(books []BookModel, users []UserModel, recs []BorrowRecordModel) *domain.Snapshot {
	s := &domain.Snapshot{
		Books:   make([]domain.Book, 0, len(books)),
		Users:   make([]domain.User, 0, len(users)),
		Records: make([]domain.BorrowRecord, 0, len(recs)),
	}
	for _, b := range books {
		s.Books = append(s.Books, domain.Book{ISBN: b.ISBN, Title: b.Title, Author: b.Author, Genre: b.Genre, Available: true})
	}
	for _, u := range users {
		s.Users = append(s.Users, domain.User{ID: u.ID, Name: u.Name, Email: u.Email, Role: domain.Role(u.Role)})
	}
	for _, r := range recs {
		s.Records = append(s.Records, domain.BorrowRecord{
			ID: r.ID, Seq: r.Seq, UserID: r.UserID, ISBN: r.ISBN,
			IssuedAt: r.IssuedAt, DueAt: r.DueAt, ReturnedAt: r.ReturnedAt,
		})
	}
	return s
}
