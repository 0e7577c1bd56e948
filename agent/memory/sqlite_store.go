package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lumaflow/luma/types"
)

// memoryRow is the gorm model backing the durable tier.
type memoryRow struct {
	ID         string  `gorm:"primaryKey;column:id"`
	Content    string  `gorm:"column:content"`
	Importance float64 `gorm:"column:importance;index"`
	Tags       string  `gorm:"column:tags"`
	Metadata   string  `gorm:"column:metadata"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (memoryRow) TableName() string { return "memories" }

// SQLiteStore persists durable memories in a SQLite database via gorm.
type SQLiteStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStore opens (and migrates) the database at path. Use ":memory:"
// for an ephemeral store. A nil logger disables logging.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&memoryRow{}); err != nil {
		return nil, fmt.Errorf("migrate memories table: %w", err)
	}
	logger.Info("memory store opened", zap.String("path", path))
	return &SQLiteStore{
		db:     db,
		logger: logger.Named("memory.sqlite"),
		now:    time.Now,
	}, nil
}

func (s *SQLiteStore) Add(ctx context.Context, rec *types.MemoryRecord) error {
	if rec.ID == "" {
		rec.ID = NewDurableID()
	}
	now := s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Tier = types.TierDurable

	row, err := toRow(rec)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return types.NewError(types.ErrMemoryStore, "insert memory").WithCause(err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.MemoryRecord, error) {
	var row memoryRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrMemoryNotFound, fmt.Sprintf("memory %q not found", id))
	}
	if err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "query memory").WithCause(err)
	}
	return fromRow(&row)
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]*types.MemoryRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + strings.ToLower(query) + "%"

	var rows []memoryRow
	err := s.db.WithContext(ctx).
		Where("lower(content) LIKE ? OR lower(tags) LIKE ?", pattern, pattern).
		Order("importance DESC").
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrMemoryStore, "search memories").WithCause(err)
	}

	out := make([]*types.MemoryRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			s.logger.Warn("skipping unreadable memory row",
				zap.String("id", rows[i].ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec *types.MemoryRecord) error {
	rec.UpdatedAt = s.now()
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&memoryRow{}).Where("id = ?", rec.ID).Updates(map[string]any{
		"content":    row.Content,
		"importance": row.Importance,
		"tags":       row.Tags,
		"metadata":   row.Metadata,
		"updated_at": rec.UpdatedAt,
	})
	if res.Error != nil {
		return types.NewError(types.ErrMemoryStore, "update memory").WithCause(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrMemoryNotFound, fmt.Sprintf("memory %q not found", rec.ID))
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&memoryRow{}, "id = ?", id)
	if res.Error != nil {
		return false, types.NewError(types.ErrMemoryStore, "delete memory").WithCause(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRow(rec *types.MemoryRecord) (*memoryRow, error) {
	meta := "{}"
	if len(rec.Metadata) > 0 {
		raw, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, types.NewError(types.ErrMemoryStore, "encode metadata").WithCause(err)
		}
		meta = string(raw)
	}
	return &memoryRow{
		ID:         rec.ID,
		Content:    rec.Content,
		Importance: rec.Importance,
		Tags:       strings.Join(rec.Tags, " "),
		Metadata:   meta,
		CreatedAt:  rec.CreatedAt,
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func fromRow(row *memoryRow) (*types.MemoryRecord, error) {
	var meta map[string]any
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", row.ID, err)
		}
	}
	var tags []string
	if row.Tags != "" {
		tags = strings.Fields(row.Tags)
	}
	return &types.MemoryRecord{
		ID:         row.ID,
		Content:    row.Content,
		Importance: row.Importance,
		Tags:       tags,
		Metadata:   meta,
		Tier:       types.TierDurable,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}
