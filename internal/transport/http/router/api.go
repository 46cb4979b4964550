package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-library-catalog/internal/core/auth"
	"go-library-catalog/internal/core/server"
	"go-library-catalog/internal/transport/http/handler"
	mdw "go-library-catalog/internal/transport/http/middleware"
)

type Limits struct {
	RPS           float64
	Burst         int
	MaxConcurrent int64
	MaxBodyBytes  int64
	Timeout       time.Duration
	// 登录按 IP 限速
	LoginRPS   float64
	LoginBurst int
}

func (l Limits) withDefaults() Limits {
	if l.RPS <= 0 {
		l.RPS = 200
	}
	if l.Burst <= 0 {
		l.Burst = 400
	}
	if l.MaxConcurrent <= 0 {
		l.MaxConcurrent = 300
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 1 << 20
	}
	if l.LoginRPS <= 0 {
		l.LoginRPS = 1
	}
	if l.LoginBurst <= 0 {
		l.LoginBurst = 5
	}
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Second
	}
	return l
}

type Deps struct {
	Log      *zap.Logger
	Mode     string
	Handler  *handler.LibraryHandler
	JWT      *auth.JWTer
	Registry *prometheus.Registry
	Limits   Limits
}

func NewAPIEngine(d Deps) *gin.Engine {
	lim := d.Limits.withDefaults()
	r := server.NewRouter(d.Log, d.Mode)

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(rate.Limit(lim.RPS), lim.Burst),
		mdw.ConcurrencyLimit(lim.MaxConcurrent),
		mdw.MaxBodyBytes(lim.MaxBodyBytes),
		mdw.Timeout(lim.Timeout),
		mdw.Metrics(d.Registry),
		mdw.AccessLog(d.Log),
	)

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	h := d.Handler
	api := r.Group("/api/v1")

	// 公共：登录 + 查书
	api.POST("/auth/login", mdw.RateLimitPerIP(mdw.NewClientLimiter(rate.Limit(lim.LoginRPS), lim.LoginBurst, 10*time.Minute)), h.Login())
	api.GET("/books", h.ListBooks())
	api.GET("/books/:isbn", h.GetBook())

	// 馆员
	staff := api.Group("")
	staff.Use(mdw.AuthJWT(d.JWT, auth.RoleLibrarian))

	staff.POST("/books", h.AddBook())
	staff.DELETE("/books/:isbn", h.RemoveBook())

	staff.POST("/users", h.RegisterUser())
	staff.GET("/users/:id", h.GetUser())
	staff.DELETE("/users/:id", h.RemoveUser())
	staff.GET("/users/:id/loans", h.UserHistory())
	staff.GET("/users/:id/overdue", h.UserOverdue())

	staff.POST("/loans", h.Borrow())
	staff.POST("/loans/:isbn/return", h.Return())
	staff.GET("/loans/overdue", h.Overdue())

	return r
}
