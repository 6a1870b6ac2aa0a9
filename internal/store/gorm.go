package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/bingo-backend/internal/engine"
)

const pgUniqueViolation = "23505"

// sessionRecord is the row shape of a session. Boards and history are JSON
// columns; the pair key carries a partial unique index so the database
// itself refuses a second unfinished game between the same players.
type sessionRecord struct {
	ID           string          `gorm:"primaryKey;size:36"`
	RoomCode     string          `gorm:"size:12;uniqueIndex;not null"`
	PairKey      string          `gorm:"size:200;not null;uniqueIndex:idx_bingo_sessions_open_pair,where:status <> 'completed' AND status <> 'cancelled'"`
	FirstID      string          `gorm:"size:64;index;not null"`
	FirstName    string          `gorm:"size:64"`
	SecondID     string          `gorm:"size:64;index"`
	SecondName   string          `gorm:"size:64"`
	Status       string          `gorm:"size:16;index;not null"`
	CancelReason string          `gorm:"size:16"`
	Rules        engine.Rules    `gorm:"serializer:json;not null"`
	Boards       [2]engine.Board `gorm:"serializer:json;not null"`
	Calls        []engine.Call   `gorm:"serializer:json;not null"`
	Turn         int             `gorm:"not null"`
	Lines        [2]int          `gorm:"serializer:json;not null"`
	Winner       string          `gorm:"size:64"`
	CreatedAt    time.Time       `gorm:"not null"`
	ExpiresAt    time.Time       `gorm:"not null"`
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Version      int64 `gorm:"not null"`
}

func (sessionRecord) TableName() string { return "bingo_sessions" }

func toRecord(s engine.Session) sessionRecord {
	calls := s.Calls
	if calls == nil {
		calls = []engine.Call{}
	}
	return sessionRecord{
		ID:           s.ID,
		RoomCode:     s.RoomCode,
		PairKey:      sessionPairKey(s),
		FirstID:      s.First.ID,
		FirstName:    s.First.Username,
		SecondID:     s.Second.ID,
		SecondName:   s.Second.Username,
		Status:       string(s.Status),
		CancelReason: string(s.CancelReason),
		Rules:        s.Rules,
		Boards:       s.Boards,
		Calls:        calls,
		Turn:         int(s.Turn),
		Lines:        s.Lines,
		Winner:       s.Winner,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		StartedAt:    s.StartedAt,
		CompletedAt:  s.CompletedAt,
		Version:      s.Version,
	}
}

func (r sessionRecord) toSession() engine.Session {
	return engine.Session{
		ID:           r.ID,
		RoomCode:     r.RoomCode,
		First:        engine.Participant{ID: r.FirstID, Username: r.FirstName},
		Second:       engine.Participant{ID: r.SecondID, Username: r.SecondName},
		Status:       engine.Status(r.Status),
		CancelReason: engine.CancelReason(r.CancelReason),
		Rules:        r.Rules,
		Boards:       r.Boards,
		Calls:        r.Calls,
		Turn:         engine.Seat(r.Turn),
		Lines:        r.Lines,
		Winner:       r.Winner,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		Version:      r.Version,
	}
}

var _ Store = (*Gorm)(nil)

// Gorm stores sessions in PostgreSQL.
type Gorm struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects to dsn and migrates the sessions table.
func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGorm(ctx, db, log)
}

func NewGorm(ctx context.Context, db *gorm.DB, log *zap.Logger) (*Gorm, error) {
	if err := db.WithContext(ctx).AutoMigrate(&sessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return &Gorm{db: db, log: log.Named("store")}, nil
}

func (g *Gorm) Create(ctx context.Context, s engine.Session) (engine.Session, error) {
	rec := toRecord(s)
	rec.Version = 1

	if err := g.db.WithContext(ctx).Create(&rec).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "room_code") {
				return engine.Session{}, ErrRoomCodeTaken
			}
			return engine.Session{}, engine.ErrSessionExists
		}
		return engine.Session{}, fmt.Errorf("insert session: %w", err)
	}

	g.log.Debug("session created", zap.String("session_id", rec.ID), zap.String("room", rec.RoomCode))
	return rec.toSession(), nil
}

func (g *Gorm) FindByRoomOrID(ctx context.Context, ref string) (engine.Session, error) {
	id, code := refKeys(ref)

	var rec sessionRecord
	err := g.db.WithContext(ctx).
		Where("id = ? OR room_code = ?", id, code).
		First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return engine.Session{}, engine.ErrSessionNotFound
	case err != nil:
		return engine.Session{}, fmt.Errorf("find session %q: %w", ref, err)
	}
	return rec.toSession(), nil
}

// Save is a compare-and-swap on the version column: the whole row is written
// only if it still carries the version the caller read.
func (g *Gorm) Save(ctx context.Context, s engine.Session) (engine.Session, error) {
	rec := toRecord(s)
	rec.Version = s.Version + 1

	res := g.db.WithContext(ctx).
		Model(&sessionRecord{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Select("*").
		Omit("id", "created_at").
		Updates(&rec)
	if res.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(res.Error, &pgErr) && pgErr.Code == pgUniqueViolation {
			return engine.Session{}, engine.ErrSessionExists
		}
		return engine.Session{}, fmt.Errorf("update session %s: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := g.FindByRoomOrID(ctx, s.ID); err != nil {
			return engine.Session{}, err
		}
		return engine.Session{}, engine.ErrStaleSession
	}
	return rec.toSession(), nil
}

func (g *Gorm) FindActiveByParticipants(ctx context.Context, a, b string) (engine.Session, bool, error) {
	var rec sessionRecord
	err := g.db.WithContext(ctx).
		Where("pair_key = ? AND status IN ?", PairKey(a, b), []string{string(engine.StatusPending), string(engine.StatusActive)}).
		First(&rec).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return engine.Session{}, false, nil
	case err != nil:
		return engine.Session{}, false, fmt.Errorf("find active session: %w", err)
	}
	return rec.toSession(), true, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
