package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"

	"go-library-catalog/internal/domain"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxConcurrent   int64
	MaxBodyBytes    int64
	// 单请求超时（context），与 WriteTimeoutSec 无关
	RequestTimeoutSec int
	// 登录按 IP 限速
	LoginRPS   float64
	LoginBurst int
}

type App struct {
	Name string
	Env  string
	HTTP HTTP
}

type Log struct {
	Level string
	JSON  bool
	// 文件切割（可选）
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

// Admin 馆员账号；PasswordHash 为 bcrypt（cmd/admin hash-password 生成）
type Admin struct {
	Username     string
	PasswordHash string
}

type Redis struct {
	Addr           string `mapstructure:"addr"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	SnapshotTTLSec int    `mapstructure:"snapshotTTLSec"`
}

// DB 为空 Driver 时不做持久化，进程退出即丢失
type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

type Library struct {
	BlockOverdue bool                     `mapstructure:"blockOverdue"`
	Policies     map[string]domain.Policy `mapstructure:"policies"`
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	Admin   Admin
	DB      DB
	Redis   Redis   `mapstructure:"redis"`
	Library Library `mapstructure:"library"`
}

// PolicyTable merges configured overrides onto the default role policies.
func (l Library) PolicyTable() (domain.PolicyTable, error) {
	override := domain.PolicyTable{}
	for name, p := range l.Policies {
		role, err := domain.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("library.policies: %w", err)
		}
		override[role] = p
	}
	table := domain.DefaultPolicies().Merge(override)
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("library.policies: %w", err)
	}
	return table, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "library-catalog")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 5)
	v.SetDefault("app.http.writetimeoutsec", 10)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.http.ratelimitrps", 200)
	v.SetDefault("app.http.ratelimitburst", 400)
	v.SetDefault("app.http.maxconcurrent", 300)
	v.SetDefault("app.http.maxbodybytes", 1<<20)
	v.SetDefault("app.http.requesttimeoutsec", 10)
	v.SetDefault("app.http.loginrps", 1)
	v.SetDefault("app.http.loginburst", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("jwt.issuer", "library-catalog")
	v.SetDefault("jwt.accesstokenttlmin", 120)
	v.SetDefault("redis.snapshotttlsec", 300)
	v.SetDefault("db.maxopenconns", 10)
	v.SetDefault("db.maxidleconns", 5)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.loglevel", "warn")
}

// Read loads path (YAML) with APP_ prefixed environment overrides.
func Read(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &c, nil
}

func Load(path string) *Config {
	c, err := Read(path)
	if err != nil {
		log.Fatal(err)
	}
	return c
}
