package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hai-court/courtroom-gateway/internal/courtroom"
	"github.com/hai-court/courtroom-gateway/internal/transcript"
)

var ErrCaseNotFound = errors.New("case not found in archive")

// CaseRecord is one archived conversation's header row.
type CaseRecord struct {
	CaseID          string `gorm:"primaryKey"`
	Status          string
	Winner          string
	ScoreDifference float64
	HumanScore      float64
	AIScore         float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EntryRecord is one archived transcript line, keyed by the uuid the
// transcript store stamped on it, so redelivered writes are no-ops.
type EntryRecord struct {
	ID         string `gorm:"primaryKey"`
	CaseID     string `gorm:"index"`
	Seq        int64  `gorm:"autoIncrement;uniqueIndex"`
	Speaker    string
	Input      string
	Context    string
	Score      float64
	IsComment  bool
	IsSummary  bool
	ReceivedAt time.Time
}

type Store struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func Open(dsn string, lg *zap.SugaredLogger) (*Store, error) {
	if lg == nil {
		lg = zap.S()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.AutoMigrate(&CaseRecord{}, &EntryRecord{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db, log: lg}, nil
}

// SaveEntries appends transcript lines for a case. Conflicting uuids are
// skipped, making redelivery idempotent.
func (s *Store) SaveEntries(ctx context.Context, caseID string, entries []transcript.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CaseRecord{CaseID: caseID, Status: string(courtroom.CaseOpen)}).Error; err != nil {
		return err
	}

	records := make([]EntryRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, EntryRecord{
			ID:         e.ID,
			CaseID:     caseID,
			Speaker:    string(e.Speaker),
			Input:      e.Text,
			Context:    e.Context,
			Score:      e.Score,
			IsComment:  e.IsComment,
			IsSummary:  e.IsSummary,
			ReceivedAt: e.ReceivedAt,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

func (s *Store) CloseCase(ctx context.Context, caseID string, state courtroom.State) error {
	return s.db.WithContext(ctx).Model(&CaseRecord{}).Where("case_id = ?", caseID).
		Updates(map[string]any{
			"status":           string(state.CaseStatus),
			"winner":           state.Winner,
			"score_difference": state.ScoreDifference,
			"human_score":      state.HumanScore,
			"ai_score":         state.AIScore,
		}).Error
}

// Conversation returns the stored case header and its entries in
// receipt order, for review replay.
func (s *Store) Conversation(ctx context.Context, caseID string) (*CaseRecord, []EntryRecord, error) {
	var record CaseRecord
	err := s.db.WithContext(ctx).First(&record, "case_id = ?", caseID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	var entries []EntryRecord
	if err := s.db.WithContext(ctx).Where("case_id = ?", caseID).
		Order("seq asc").Find(&entries).Error; err != nil {
		return nil, nil, err
	}
	return &record, entries, nil
}
