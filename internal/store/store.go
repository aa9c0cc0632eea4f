// Package store persists trade records, balance snapshots, and
// decision logs in an append-only SQLite database via gorm. The core
// never relies on read-after-write consistency stronger than "visible
// on the next poll".
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	storemodel "quorum/internal/store/model"
)

// TradeRecord is one lifecycle event of a position as the rest of the
// system sees it; the gorm model stays private to this package tree.
type TradeRecord struct {
	Time     time.Time
	Venue    string
	Group    string
	Symbol   string
	Action   string // "open" or "close"
	Side     string
	Price    float64
	Size     float64
	PnL      float64
	PnLPct   float64
	Leverage float64
	Reason   string
	Details  map[string]any
}

// BalanceSnapshot is one per-venue account observation.
type BalanceSnapshot struct {
	Time    time.Time
	Venue   string
	Group   string
	Balance float64
	PnL     float64
	ROI     float64
}

// DecisionLog is one consensus round.
type DecisionLog struct {
	Time           time.Time
	Group          string
	Symbol         string
	Action         string
	AgreementCount int
	TotalVoters    int
	AvgConfidence  float64
	Votes          []DecisionVote
}

// DecisionVote is one oracle's contribution inside a DecisionLog.
type DecisionVote struct {
	Oracle     string  `json:"oracle"`
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
}

// Recorder is the slice of the store trading components write to.
type Recorder interface {
	AppendTrade(ctx context.Context, rec TradeRecord) error
	AppendBalance(ctx context.Context, snap BalanceSnapshot) error
	AppendDecision(ctx context.Context, log DecisionLog) error
}

// Store implements Recorder plus the read side the HTTP API uses.
type Store struct {
	db *gorm.DB
}

var _ Recorder = (*Store)(nil)

// Open creates or opens the SQLite trade log at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: creating %s failed: %w", dir, err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&storemodel.TradeRecordModel{},
		&storemodel.BalanceSnapshotModel{},
		&storemodel.DecisionLogModel{},
	); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func (s *Store) AppendTrade(ctx context.Context, rec TradeRecord) error {
	var details datatypes.JSON
	if len(rec.Details) > 0 {
		raw, err := json.Marshal(rec.Details)
		if err != nil {
			return fmt.Errorf("store: encoding trade details failed: %w", err)
		}
		details = raw
	}
	row := storemodel.TradeRecordModel{
		Time:     rec.Time,
		Venue:    rec.Venue,
		Group:    rec.Group,
		Symbol:   rec.Symbol,
		Action:   rec.Action,
		Side:     rec.Side,
		Price:    rec.Price,
		Size:     rec.Size,
		PnL:      rec.PnL,
		PnLPct:   rec.PnLPct,
		Leverage: rec.Leverage,
		Reason:   rec.Reason,
		Details:  details,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) AppendBalance(ctx context.Context, snap BalanceSnapshot) error {
	row := storemodel.BalanceSnapshotModel{
		Time:    snap.Time,
		Venue:   snap.Venue,
		Group:   snap.Group,
		Balance: snap.Balance,
		PnL:     snap.PnL,
		ROI:     snap.ROI,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) AppendDecision(ctx context.Context, log DecisionLog) error {
	votes, err := json.Marshal(log.Votes)
	if err != nil {
		return fmt.Errorf("store: encoding votes failed: %w", err)
	}
	row := storemodel.DecisionLogModel{
		Time:           log.Time,
		Group:          log.Group,
		Symbol:         log.Symbol,
		Action:         log.Action,
		AgreementCount: log.AgreementCount,
		TotalVoters:    log.TotalVoters,
		AvgConfidence:  log.AvgConfidence,
		Votes:          votes,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// ListTrades returns the newest trade records, optionally filtered by
// venue, newest first.
func (s *Store) ListTrades(ctx context.Context, venueName string, limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&storemodel.TradeRecordModel{}).Order("id DESC").Limit(limit)
	if v := strings.TrimSpace(venueName); v != "" {
		q = q.Where("venue = ?", v)
	}
	var rows []storemodel.TradeRecordModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TradeRecord, 0, len(rows))
	for _, r := range rows {
		rec := TradeRecord{
			Time:     r.Time,
			Venue:    r.Venue,
			Group:    r.Group,
			Symbol:   r.Symbol,
			Action:   r.Action,
			Side:     r.Side,
			Price:    r.Price,
			Size:     r.Size,
			PnL:      r.PnL,
			PnLPct:   r.PnLPct,
			Leverage: r.Leverage,
			Reason:   r.Reason,
		}
		if len(r.Details) > 0 {
			_ = json.Unmarshal(r.Details, &rec.Details)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ListBalances returns the newest balance snapshots for one venue.
func (s *Store) ListBalances(ctx context.Context, venueName string, limit int) ([]BalanceSnapshot, error) {
	if limit <= 0 {
		limit = 288
	}
	q := s.db.WithContext(ctx).Model(&storemodel.BalanceSnapshotModel{}).Order("id DESC").Limit(limit)
	if v := strings.TrimSpace(venueName); v != "" {
		q = q.Where("venue = ?", v)
	}
	var rows []storemodel.BalanceSnapshotModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]BalanceSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, BalanceSnapshot{
			Time: r.Time, Venue: r.Venue, Group: r.Group,
			Balance: r.Balance, PnL: r.PnL, ROI: r.ROI,
		})
	}
	return out, nil
}
