package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-library-catalog/internal/domain"
)

const batchSize = 200

// SnapshotRepo stores whole-library snapshots in three tables.
//
// Save is the incremental path used by the running service: books and users
// are rewritten, borrow records are upserted by id (history only grows).
// Replace makes the tables hold exactly the given snapshot, history included;
// use it when the snapshot does not descend from what is stored (import).
type SnapshotRepo struct{ db *gorm.DB }

func NewSnapshotRepo(db *gorm.DB) *SnapshotRepo { return &SnapshotRepo{db: db} }

func (r *SnapshotRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(Models()...)
}

func (r *SnapshotRepo) Save(ctx context.Context, s *domain.Snapshot) error {
	return r.write(ctx, s, false)
}

func (r *SnapshotRepo) Replace(ctx context.Context, s *domain.Snapshot) error {
	return r.write(ctx, s, true)
}

func (r *SnapshotRepo) write(ctx context.Context, s *domain.Snapshot, replace bool) error {
	books, users, recs := toModels(s)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if err := all.Delete(&BookModel{}).Error; err != nil {
			return fmt.Errorf("clear books: %w", err)
		}
		if err := all.Delete(&UserModel{}).Error; err != nil {
			return fmt.Errorf("clear users: %w", err)
		}
		if replace {
			if err := all.Delete(&BorrowRecordModel{}).Error; err != nil {
				return fmt.Errorf("clear borrow records: %w", err)
			}
		}
		if len(books) > 0 {
			if err := tx.CreateInBatches(&books, batchSize).Error; err != nil {
				return fmt.Errorf("insert books: %w", err)
			}
		}
		if len(users) > 0 {
			if err := tx.CreateInBatches(&users, batchSize).Error; err != nil {
				return fmt.Errorf("insert users: %w", err)
			}
		}
		if len(recs) == 0 {
			return nil
		}
		ins := tx
		if !replace {
			ins = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"returned_at"}),
			})
		}
		if err := ins.CreateInBatches(&recs, batchSize).Error; err != nil {
			return fmt.Errorf("write borrow records: %w", err)
		}
		return nil
	})
}

func (r *SnapshotRepo) Load(ctx context.Context) (*domain.Snapshot, error) {
	var (
		books []BookModel
		users []UserModel
		recs  []BorrowRecordModel
	)
	db := r.db.WithContext(ctx)
	if err := db.Order("position").Find(&books).Error; err != nil {
		return nil, fmt.Errorf("load books: %w", err)
	}
	if err := db.Order("position").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	if err := db.Order("seq").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load borrow records: %w", err)
	}
	return fromModels(books, users, recs), nil
}
