package database

import (
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrUnsupportedDriver = errors.New("unsupported db driver")

type Opts struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	LogLevel           string
	Log                *log.Logger // nil → gorm 默认输出
}

func NewGorm(o Opts) (*gorm.DB, error) {
	var dial gorm.Dialector
	switch o.Driver {
	case "postgres":
		dial = postgres.Open(o.DSN)
	case "mysql":
		dsn, err := NormalizeMySQLDSN(o.DSN, o.Username, o.Password)
		if err != nil {
			return nil, err
		}
		dial = mysql.Open(dsn)
	default:
		return nil, ErrUnsupportedDriver
	}

	gl := logger.Default
	if o.Log != nil {
		gl = logger.New(o.Log, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			IgnoreRecordNotFoundError: true,
		})
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gl.LogMode(logLevel(o.LogLevel))})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(o.MaxOpenConns)
	sqlDB.SetMaxIdleConns(o.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(o.ConnMaxLifetimeMin) * time.Minute)
	return db.Session(&gorm.Session{
		PrepareStmt:     true,
		CreateBatchSize: 200, // 快照批量写
	}), nil
}

func logLevel(s string) logger.LogLevel {
	switch s {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// NormalizeMySQLDSN accepts either a go-sql-driver DSN or a mysql:// (or
// jdbc:mysql://) URL and returns a go-sql-driver DSN. user/pass override the
// credentials found in the input when non-empty.
func NormalizeMySQLDSN(input, user, pass string) (string, error) {
	in := strings.TrimPrefix(strings.TrimSpace(input), "jdbc:")
	if !strings.HasPrefix(in, "mysql://") {
		cfg, err := mysqldrv.ParseDSN(in)
		if err != nil {
			return "", err
		}
		applyCreds(cfg, user, pass)
		return cfg.FormatDSN(), nil
	}

	u, err := url.Parse(in)
	if err != nil {
		return "", err
	}
	cfg := mysqldrv.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}
	q := u.Query()
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	if v := q.Get("characterEncoding"); v != "" {
		cfg.Params["charset"] = v
	}
	if v := q.Get("charset"); v != "" {
		cfg.Params["charset"] = v
	}
	if tz := q.Get("serverTimezone"); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			cfg.Loc = loc
		}
	}
	applyCreds(cfg, user, pass)
	return cfg.FormatDSN(), nil
}

func applyCreds(cfg *mysqldrv.Config, user, pass string) {
	if user != "" {
		cfg.User = user
	}
	if pass != "" {
		cfg.Passwd = pass
	}
}
