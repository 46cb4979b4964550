package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-library-catalog/internal/core/auth"
	"go-library-catalog/internal/domain"
	"go-library-catalog/internal/library"
	"go-library-catalog/internal/transport/http/ez"
	"go-library-catalog/pkg/utils"
)

const dateLayout = "2006-01-02"

// Persister receives a snapshot after every successful mutation.
type Persister interface {
	Save(ctx context.Context, s *domain.Snapshot) error
}

type Librarian struct {
	Username     string
	PasswordHash string
}

type LibraryHandler struct {
	lib       *library.Library
	jwter     *auth.JWTer
	librarian Librarian
	store     Persister // 可为 nil
	saveMu    sync.Mutex
	log       *zap.Logger
	Now       func() time.Time
}

func NewLibraryHandler(lib *library.Library, jwter *auth.JWTer, librarian Librarian, store Persister, l *zap.Logger) *LibraryHandler {
	if l == nil {
		l = zap.NewNop()
	}
	return &LibraryHandler{lib: lib, jwter: jwter, librarian: librarian, store: store, log: l, Now: time.Now}
}

// today 解析可选的 YYYY-MM-DD；为空时取当天零点（本地时区）
func (h *LibraryHandler) today(s string) (time.Time, error) {
	if s = strings.TrimSpace(s); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, time.Local)
		if err != nil {
			return time.Time{}, ez.BadRequest("today must be YYYY-MM-DD")
		}
		return t, nil
	}
	now := h.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
}

func (h *LibraryHandler) persist(c *gin.Context) {
	if h.store == nil {
		return
	}
	// 取快照与写入同序，避免旧快照覆盖新快照
	h.saveMu.Lock()
	defer h.saveMu.Unlock()
	if err := h.store.Save(c.Request.Context(), h.lib.Snapshot()); err != nil {
		h.log.Error("snapshot save failed", zap.Error(err))
	}
}

// ---------- auth ----------

type loginIn struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginOut struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *LibraryHandler) Login() gin.HandlerFunc {
	return ez.Handle(ez.Action[loginIn, loginOut]{
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *loginIn) (loginOut, error) {
			if in.Username != h.librarian.Username || !utils.CheckPassword(in.Password, h.librarian.PasswordHash) {
				return loginOut{}, ez.Unauthorized("invalid credentials")
			}
			tok, err := h.jwter.Issue(in.Username, auth.RoleLibrarian)
			if err != nil {
				return loginOut{}, ez.Internal("issue token failed", err)
			}
			return loginOut{Token: tok, ExpiresAt: h.Now().Add(h.jwter.TTL)}, nil
		},
	})
}

// ---------- books ----------

type listBooksQ struct {
	Author string `form:"author"`
	Title  string `form:"title"`
	Q      string `form:"q"`
}

func (h *LibraryHandler) ListBooks() gin.HandlerFunc {
	return ez.Handle(ez.Action[listBooksQ, []domain.Book]{
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listBooksQ) ([]domain.Book, error) {
			switch {
			case in.Author != "":
				return h.lib.FindByAuthor(in.Author), nil
			case in.Title != "":
				return h.lib.FindByTitle(in.Title), nil
			case in.Q != "":
				return h.lib.Search(in.Q), nil
			default:
				return h.lib.Books(), nil
			}
		},
	})
}

func (h *LibraryHandler) GetBook() gin.HandlerFunc {
	return ez.Handle(ez.Action[struct{}, domain.Book]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (domain.Book, error) {
			return h.lib.FindBook(c.Param("isbn"))
		},
	})
}

type addBookIn struct {
	ISBN   string `json:"isbn"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

func (h *LibraryHandler) AddBook() gin.HandlerFunc {
	return ez.Handle(ez.Action[addBookIn, domain.Book]{
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *addBookIn) (domain.Book, error) {
			b, err := h.lib.AddBook(in.Title, in.Author, in.ISBN, in.Genre)
			if err != nil {
				return domain.Book{}, err
			}
			h.persist(c)
			return b, nil
		},
	})
}

func (h *LibraryHandler) RemoveBook() gin.HandlerFunc {
	return ez.Handle(ez.Action[struct{}, gin.H]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			isbn := c.Param("isbn")
			if err := h.lib.RemoveBook(isbn); err != nil {
				return nil, err
			}
			h.persist(c)
			return gin.H{"isbn": isbn}, nil
		},
	})
}

// ---------- users ----------

type registerIn struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

func (h *LibraryHandler) RegisterUser() gin.HandlerFunc {
	return ez.Handle(ez.Action[registerIn, domain.User]{
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *registerIn) (domain.User, error) {
			u, err := h.lib.RegisterUser(in.ID, in.Name, in.Role, in.Email)
			if err != nil {
				return domain.User{}, err
			}
			h.persist(c)
			return u, nil
		},
	})
}

type userOut struct {
	domain.User
	Policy      domain.Policy `json:"policy"`
	ActiveLoans int           `json:"activeLoans"`
}

func (h *LibraryHandler) GetUser() gin.HandlerFunc {
	return ez.Handle(ez.Action[struct{}, userOut]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (userOut, error) {
			u, err := h.lib.FindUser(c.Param("id"))
			if err != nil {
				return userOut{}, err
			}
			return userOut{User: u, Policy: h.lib.Policy(u.Role), ActiveLoans: h.lib.ActiveLoans(u.ID)}, nil
		},
	})
}

func (h *LibraryHandler) RemoveUser() gin.HandlerFunc {
	return ez.Handle(ez.Action[struct{}, gin.H]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			id := c.Param("id")
			if err := h.lib.RemoveUser(id); err != nil {
				return nil, err
			}
			h.persist(c)
			return gin.H{"id": id}, nil
		},
	})
}

func (h *LibraryHandler) UserHistory() gin.HandlerFunc {
	return ez.Handle(ez.Action[struct{}, []domain.BorrowRecord]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) ([]domain.BorrowRecord, error) {
			return h.lib.History(c.Param("id")), nil
		},
	})
}

type todayQ struct {
	Today string `form:"today"`
}

func (h *LibraryHandler) UserOverdue() gin.HandlerFunc {
	return ez.Handle(ez.Action[todayQ, []domain.BorrowRecord]{
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *todayQ) ([]domain.BorrowRecord, error) {
			today, err := h.today(in.Today)
			if err != nil {
				return nil, err
			}
			return h.lib.OverdueForUser(c.Param("id"), today)
		},
	})
}

// ---------- loans ----------

type borrowIn struct {
	UserID string `json:"userId"`
	ISBN   string `json:"isbn"`
	Today  string `json:"today"`
}

func (h *LibraryHandler) Borrow() gin.HandlerFunc {
	return ez.Handle(ez.Action[borrowIn, domain.BorrowRecord]{
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *borrowIn) (domain.BorrowRecord, error) {
			today, err := h.today(in.Today)
			if err != nil {
				return domain.BorrowRecord{}, err
			}
			rec, err := h.lib.Borrow(in.UserID, in.ISBN, today)
			if err != nil {
				return domain.BorrowRecord{}, err
			}
			h.persist(c)
			return rec, nil
		},
	})
}

type returnIn struct {
	Today string `json:"today"`
}

func (h *LibraryHandler) Return() gin.HandlerFunc {
	return ez.Handle(ez.Action[returnIn, domain.BorrowRecord]{
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, in *returnIn) (domain.BorrowRecord, error) {
			// body 可选；chunked 请求没有 ContentLength，空 body 读到 EOF
			if c.Request.Body != nil && c.Request.Body != http.NoBody {
				if err := c.ShouldBindJSON(in); err != nil && !errors.Is(err, io.EOF) {
					return domain.BorrowRecord{}, ez.BadRequest(err.Error())
				}
			}
			today, err := h.today(in.Today)
			if err != nil {
				return domain.BorrowRecord{}, err
			}
			rec, err := h.lib.Return(c.Param("isbn"), today)
			if err != nil {
				return domain.BorrowRecord{}, err
			}
			h.persist(c)
			return rec, nil
		},
	})
}

func (h *LibraryHandler) Overdue() gin.HandlerFunc {
	return ez.Handle(ez.Action[todayQ, []domain.BorrowRecord]{
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *todayQ) ([]domain.BorrowRecord, error) {
			today, err := h.today(in.Today)
			if err != nil {
				return nil, err
			}
			return h.lib.Overdue(today), nil
		},
	})
}
