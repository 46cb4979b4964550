package book

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"go-library-catalog/internal/domain"
)

// Registry owns the canonical set of books.
// author/title 索引是派生数据，只在 Add/Remove 中与主表一起修改。
// Not safe for concurrent use.
type Registry struct {
	books    map[string]*domain.Book
	order    []string
	byAuthor map[string][]string
	byTitle  map[string][]string
	fold     cases.Caser
}

func NewRegistry() *Registry {
	return &Registry{
		books:    make(map[string]*domain.Book),
		byAuthor: make(map[string][]string),
		byTitle:  make(map[string][]string),
		fold:     cases.Fold(),
	}
}

// Key normalizes an author or title for index lookups:
// whitespace runs collapse to one space and case is folded.
func (r *Registry) Key(s string) string {
	return r.fold.String(strings.Join(strings.Fields(s), " "))
}

func (r *Registry) Add(title, author, isbn, genre string) (domain.Book, error) {
	b := domain.Book{
		ISBN:      domain.Key(isbn),
		Title:     strings.TrimSpace(title),
		Author:    strings.TrimSpace(author),
		Genre:     strings.TrimSpace(genre),
		Available: true,
	}
	if err := domain.Check(b); err != nil {
		return domain.Book{}, err
	}
	if _, ok := r.books[b.ISBN]; ok {
		return domain.Book{}, domain.DuplicateKey("book with isbn %q already exists", b.ISBN)
	}
	r.insert(&b)
	return b, nil
}

func (r *Registry) insert(b *domain.Book) {
	r.books[b.ISBN] = b
	r.order = append(r.order, b.ISBN)
	ak, tk := r.Key(b.Author), r.Key(b.Title)
	r.byAuthor[ak] = append(r.byAuthor[ak], b.ISBN)
	r.byTitle[tk] = append(r.byTitle[tk], b.ISBN)
}

func (r *Registry) Remove(isbn string) error {
	isbn = domain.Key(isbn)
	b, ok := r.books[isbn]
	if !ok {
		return domain.NotFound("book %q not found", isbn)
	}
	if !b.Available {
		return domain.Conflict("book %q is on loan", isbn)
	}
	dropFromIndex(r.byAuthor, r.Key(b.Author), isbn)
	dropFromIndex(r.byTitle, r.Key(b.Title), isbn)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == isbn })
	delete(r.books, isbn)
	return nil
}

func dropFromIndex(idx map[string][]string, key, isbn string) {
	rest := slices.DeleteFunc(idx[key], func(s string) bool { return s == isbn })
	if len(rest) == 0 {
		delete(idx, key)
		return
	}
	idx[key] = rest
}

func (r *Registry) Find(isbn string) (domain.Book, error) {
	isbn = domain.Key(isbn)
	b, ok := r.books[isbn]
	if !ok {
		return domain.Book{}, domain.NotFound("book %q not found", isbn)
	}
	return *b, nil
}

// FindByAuthor returns matching books in insertion order.
func (r *Registry) FindByAuthor(author string) []domain.Book {
	return r.materialize(r.byAuthor[r.Key(author)])
}

func (r *Registry) FindByTitle(title string) []domain.Book {
	return r.materialize(r.byTitle[r.Key(title)])
}

// Search 先按 ISBN 精确匹配，再查作者索引，最后查书名索引
func (r *Registry) Search(query string) []domain.Book {
	q := strings.TrimSpace(query)
	if q == "" {
		return []domain.Book{}
	}
	if b, ok := r.books[q]; ok {
		return []domain.Book{*b}
	}
	if isbns, ok := r.byAuthor[r.Key(q)]; ok {
		return r.materialize(isbns)
	}
	return r.materialize(r.byTitle[r.Key(q)])
}

func (r *Registry) List() []domain.Book { return r.materialize(r.order) }

func (r *Registry) Len() int { return len(r.books) }

func (r *Registry) SetAvailability(isbn string, available bool) error {
	isbn = domain.Key(isbn)
	b, ok := r.books[isbn]
	if !ok {
		return domain.NotFound("book %q not found", isbn)
	}
	b.Available = available
	return nil
}

// Restore replaces the registry content with books, rebuilding every index.
// On error the registry is left untouched.
func (r *Registry) Restore(books []domain.Book) error {
	next := NewRegistry()
	for _, b := range books {
		b.ISBN = domain.Key(b.ISBN)
		if err := domain.Check(b); err != nil {
			return err
		}
		if _, ok := next.books[b.ISBN]; ok {
			return domain.DuplicateKey("book with isbn %q already exists", b.ISBN)
		}
		next.insert(&b)
	}
	*r = *next
	return nil
}

func (r *Registry) materialize(isbns []string) []domain.Book {
	out := make([]domain.Book, 0, len(isbns))
	for _, isbn := range isbns {
		out = append(out, *r.books[isbn])
	}
	return out
}
