// Package model holds the gorm table definitions for the trade log.
package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeRecordModel is one append-only lifecycle event of a position.
// Rows are never updated or deleted.
type TradeRecordModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Time      time.Time `gorm:"index"`
	Venue     string    `gorm:"size:32;index"`
	Group     string    `gorm:"size:64;index"`
	Symbol    string    `gorm:"size:32;index"`
	Action    string    `gorm:"size:16"` // open | close
	Side      string    `gorm:"size:8"`
	Price     float64
	Size      float64
	PnL       float64
	PnLPct    float64
	Leverage  float64
	Reason    string         `gorm:"type:text"`
	Details   datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time
}

func (TradeRecordModel) TableName() string { return "trade_records" }

// BalanceSnapshotModel is a periodic per-venue account snapshot used
// for the comparison views.
type BalanceSnapshotModel struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Time      time.Time `gorm:"index"`
	Venue     string    `gorm:"size:32;index"`
	Group     string    `gorm:"size:64;index"`
	Balance   float64
	PnL       float64
	ROI       float64
	CreatedAt time.Time
}

func (BalanceSnapshotModel) TableName() string { return "balance_snapshots" }

// DecisionLogModel records every consensus round for audit.
type DecisionLogModel struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	Time           time.Time `gorm:"index"`
	Group          string    `gorm:"size:64;index"`
	Symbol         string    `gorm:"size:32;index"`
	Action         string    `gorm:"size:16"`
	AgreementCount int
	TotalVoters    int
	AvgConfidence  float64
	Votes          datatypes.JSON `gorm:"type:json"`
	CreatedAt      time.Time
}

func (DecisionLogModel) TableName() string { return "decision_logs" }
