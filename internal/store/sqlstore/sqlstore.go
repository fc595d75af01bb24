// Package sqlstore implements store.Store on gorm, with sqlite for local
// runs and tests and postgres for deployments.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
	"github.com/CIPHER-000/chess-AI-sub000/internal/store"
)

// Config selects and tunes the database.
type Config struct {
	Driver          string // sqlite or postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent, error, warn, info
	Logger          zerolog.Logger
}

// Store is a gorm-backed store.Store.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects, applies pool settings and migrates the schema.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "sqlite3", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
		// sqlite allows one writer; a single connection keeps writes ordered
		cfg.MaxOpenConns = 1
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	log := cfg.Logger.With().Str("component", "sqlstore").Logger()
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 NewGormLogger(log, parseLogLevel(cfg.LogLevel)),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := New(db, log)
	if err := s.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.Driver).Int("max_open", cfg.MaxOpenConns).Msg("database connected")
	return s, nil
}

// New wraps an existing connection. Call Migrate before first use.
func New(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&userRow{}, &gameRow{}, &resultRow{}, &failureRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// DB exposes the connection for tools that read the tables directly.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) GetGame(ctx context.Context, id int64) (*model.Game, error) {
	var row gameRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("game %d: %w", id, model.ErrGameNotFound)
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListGames(ctx context.Context, userID int64, filter store.GameFilter) ([]*model.Game, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter.OnlyUnanalyzed {
		q = q.Where("analyzed = ?", false)
	}
	if !filter.EndedAfter.IsZero() {
		q = q.Where("end_time >= ?", filter.EndedAfter.UTC())
	}
	if len(filter.TimeClasses) > 0 {
		q = q.Where("time_class IN ?", filter.TimeClasses)
	}
	if filter.Rated != nil {
		q = q.Where("rated = ?", *filter.Rated)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []gameRow
	if err := q.Order("end_time DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Game, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// PutGame upserts a game. The analyzed flag is derived from whether a result
// exists, so seeding cannot break the analyzed/result pairing.
func (s *Store) PutGame(ctx context.Context, g *model.Game) error {
	if g.ID == 0 {
		return fmt.Errorf("game id is required")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&resultRow{}).Where("game_id = ?", g.ID).Count(&n).Error; err != nil {
			return err
		}
		row := gameToRow(g)
		row.Analyzed = n > 0
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	})
}

func (s *Store) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", id, model.ErrUserNotFound)
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.User, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

func (s *Store) PutUser(ctx context.Context, u *model.User) error {
	if u.ID == 0 {
		return fmt.Errorf("user id is required")
	}
	row := userToRow(u)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// ConsumeAIQuota grants one slot with a conditional increment. Zero affected
// rows with a slot still visible before the update means another request
// took it first.
func (s *Store) ConsumeAIQuota(ctx context.Context, userID int64, now time.Time) (*model.User, bool, error) {
	db := s.db.WithContext(ctx)
	before, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if before.Tier == model.TierPro {
		return before, true, nil
	}

	res := db.Model(&userRow{}).
		Where("id = ? AND tier = ? AND ai_analyses_used < ai_analyses_limit", userID, string(model.TierFree)).
		Update("ai_analyses_used", gorm.Expr("ai_analyses_used + 1"))
	if res.Error != nil {
		return nil, false, res.Error
	}
	granted := res.RowsAffected == 1

	err = db.Model(&userRow{}).
		Where("id = ? AND trial_exhausted_at IS NULL AND ai_analyses_used >= ai_analyses_limit", userID).
		Update("trial_exhausted_at", now.UTC()).Error
	if err != nil {
		return nil, false, err
	}

	after, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !granted && before.AIAnalysesUsed < before.AIAnalysesLimit {
		return after, false, fmt.Errorf("user %d: %w", userID, model.ErrQuotaRaceRejected)
	}
	return after, granted, nil
}

func (s *Store) SetTier(ctx context.Context, userID int64, tier model.Tier, limit int, resetTrial bool) (*model.User, error) {
	updates := map[string]any{
		"tier":              string(tier),
		"ai_analyses_limit": limit,
	}
	if resetTrial {
		updates["ai_analyses_used"] = 0
		updates["trial_exhausted_at"] = nil
	}
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("user %d: %w", userID, model.ErrUserNotFound)
	}
	return s.GetUser(ctx, userID)
}

// SaveResult writes the result, flags the game analyzed and clears any
// failure in one transaction.
func (s *Store) SaveResult(ctx context.Context, r *model.GameAnalysisResult) error {
	row, err := resultToRow(r)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&gameRow{}).Where("id = ?", r.GameID).Update("analyzed", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("game %d: %w", r.GameID, model.ErrGameNotFound)
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return err
		}
		return tx.Where("game_id = ?", r.GameID).Delete(&failureRow{}).Error
	})
}

func (s *Store) GetResult(ctx context.Context, gameID int64) (*model.GameAnalysisResult, error) {
	var row resultRow
	if err := s.db.WithContext(ctx).First(&row, "game_id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("game %d: %w", gameID, model.ErrResultNotFound)
		}
		return nil, err
	}
	return row.toModel()
}

func (s *Store) DeleteResult(ctx context.Context, gameID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("game_id = ?", gameID).Delete(&resultRow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("game %d: %w", gameID, model.ErrResultNotFound)
		}
		return tx.Model(&gameRow{}).Where("id = ?", gameID).Update("analyzed", false).Error
	})
}

func (s *Store) ListResults(ctx context.Context, userID int64, start, end time.Time) ([]*model.GameAnalysisResult, error) {
	var rows []resultRow
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND game_end_time >= ? AND game_end_time < ?", userID, start.UTC(), end.UTC()).
		Order("game_end_time").Order("game_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.GameAnalysisResult, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("decode result %d: %w", rows[i].GameID, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) PageResults(ctx context.Context, userID int64, offset, limit int) ([]*model.GameAnalysisResult, int, error) {
	if offset < 0 {
		offset = 0
	}
	db := s.db.WithContext(ctx)
	var total int64
	if err := db.Model(&resultRow{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	out := []*model.GameAnalysisResult{}
	if limit <= 0 || int64(offset) >= total {
		return out, int(total), nil
	}
	var rows []resultRow
	err := db.Where("user_id = ?", userID).
		Order("game_end_time DESC").Order("game_id DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	for i := range rows {
		r, err := rows[i].toModel()
		if err != nil {
			return nil, 0, fmt.Errorf("decode result %d: %w", rows[i].GameID, err)
		}
		out = append(out, r)
	}
	return out, int(total), nil
}

func (s *Store) RecordFailure(ctx context.Context, f *model.AnalysisFailure) error {
	row := failureToRow(f)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

func (s *Store) GetFailure(ctx context.Context, gameID int64) (*model.AnalysisFailure, error) {
	var row failureRow
	err := s.db.WithContext(ctx).First(&row, "game_id = ?", gameID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Silent
	}
}
