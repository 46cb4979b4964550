// Command admin is the operator tool: librarian password hashes, schema
// migration and snapshot export/import.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"go-library-catalog/internal/core/cache"
	"go-library-catalog/internal/core/config"
	"go-library-catalog/internal/core/database"
	"go-library-catalog/internal/core/logger"
	"go-library-catalog/internal/domain"
	"go-library-catalog/internal/library"
	"go-library-catalog/internal/repo"
	"go-library-catalog/pkg/utils"
)

const usage = `usage: admin <command> [flags]

commands:
  hash-password -p <password>   print bcrypt hash for admin.passwordhash
  migrate                       create/upgrade snapshot tables
  export [-o file]              write the stored snapshot as JSON
  import -i file                validate a JSON snapshot and replace the stored one
`

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	_ = godotenv.Load()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "hash-password":
		err = hashPassword(args, os.Stdout)
	case "migrate", "export", "import":
		err = withStore(cmd, args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		os.Exit(1)
	}
}

func hashPassword(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	pw := fs.String("p", "", "plain password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	h, err := utils.HashPassword(*pw)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, h)
	return err
}

func withStore(cmd string, args []string) error {
	cfg := config.Load(os.Getenv("CONFIG_PATH"))
	log, cleanup := logger.New(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	defer cleanup()

	db, err := openDB(cfg, log)
	if err != nil {
		return err
	}
	snapshots := repo.NewSnapshotRepo(db)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch cmd {
	case "migrate":
		if err := snapshots.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("migrate done")
		return nil
	case "export":
		fs := flag.NewFlagSet("export", flag.ContinueOnError)
		path := fs.String("o", "", "output file (default stdout)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		snap, err := snapshots.Load(ctx)
		if err != nil {
			return err
		}
		out := io.Writer(os.Stdout)
		if *path != "" {
			f, err := os.Create(*path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return writeSnapshot(out, snap)
	default:
		fs := flag.NewFlagSet("import", flag.ContinueOnError)
		path := fs.String("i", "", "input file")
		if err := fs.Parse(args); err != nil {
			return err
		}
		f, err := os.Open(*path)
		if err != nil {
			return err
		}
		defer f.Close()
		snap, err := readSnapshot(f, cfg)
		if err != nil {
			return err
		}
		// 导入的快照与库中历史无关，整体替换；有 redis 时同步刷新缓存
		var c *cache.Cache
		if cfg.Redis.Addr != "" {
			c = cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		}
		ttl := time.Duration(cfg.Redis.SnapshotTTLSec) * time.Second
		store := repo.NewStore(snapshots, c, ttl, log.Named("cache"))
		if err := store.Replace(ctx, snap); err != nil {
			return fmt.Errorf("import: %w", err)
		}
		log.Info("import done",
			zap.Int("books", len(snap.Books)),
			zap.Int("users", len(snap.Users)),
			zap.Int("records", len(snap.Records)),
		)
		return nil
	}
}

func writeSnapshot(w io.Writer, s *domain.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// readSnapshot 经 Library.Restore 校验后再输出规范化快照（可用状态按未还记录重算）
func readSnapshot(r io.Reader, cfg *config.Config) (*domain.Snapshot, error) {
	var in domain.Snapshot
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	policies, err := cfg.Library.PolicyTable()
	if err != nil {
		return nil, err
	}
	lib, err := library.New(library.Options{Policies: policies, BlockOverdue: cfg.Library.BlockOverdue})
	if err != nil {
		return nil, err
	}
	if err := lib.Restore(&in); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return lib.Snapshot(), nil
}

func openDB(cfg *config.Config, l *zap.Logger) (*gorm.DB, error) {
	if cfg.DB.Driver == "" {
		return nil, fmt.Errorf("db.driver is not configured")
	}
	return database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Log:                logger.ToStdLogger(l.Named("gorm"), zapcore.WarnLevel),
	})
}
