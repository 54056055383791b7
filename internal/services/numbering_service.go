package services

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"progitek/server/internal/models"
	"progitek/server/internal/workflow"
)

// numberAttempts bounds document creation retries after a number collision.
const numberAttempts = 3

// NumberingService issues human readable document numbers (DEV-2026-0001,
// FAC-2026-0001). Numbers are monotonic per prefix and calendar year.
type NumberingService struct{}

// NewNumberingService creates a NumberingService.
func NewNumberingService() *NumberingService {
	return &NumberingService{}
}

// Next reserves the next number for prefix in year. It must run inside the
// caller's transaction: the UPDATE locks the sequence row until commit, so
// two concurrent transactions never read the same value, and a rollback
// gives the number back.
func (s *NumberingService) Next(tx *gorm.DB, prefix string, year int) (string, error) {
	seq := models.DocumentSequence{Prefix: prefix, Year: year}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return "", fmt.Errorf("init sequence %s/%d: %w", prefix, year, err)
	}

	res := tx.Model(&models.DocumentSequence{}).
		Where("prefix = ? AND year = ?", prefix, year).
		Updates(map[string]interface{}{
			"last_value": gorm.Expr("last_value + 1"),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return "", fmt.Errorf("increment sequence %s/%d: %w", prefix, year, res.Error)
	}
	if res.RowsAffected != 1 {
		return "", fmt.Errorf("increment sequence %s/%d: %d rows affected", prefix, year, res.RowsAffected)
	}

	if err := tx.Where("prefix = ? AND year = ?", prefix, year).Take(&seq).Error; err != nil {
		return "", fmt.Errorf("read sequence %s/%d: %w", prefix, year, err)
	}

	return FormatNumber(prefix, year, seq.LastValue), nil
}

// Resync raises the prefix/year sequence to the highest number already
// stored in the table of model (soft deleted rows included), so the next
// call to Next skips numbers that were inserted without the sequence, such
// as imported documents. It runs outside any caller transaction and returns
// the highest number found.
func (s *NumberingService) Resync(db *gorm.DB, model interface{}, prefix string, year int) (int64, error) {
	var numbers []string
	err := db.Unscoped().Model(model).
		Where("number LIKE ?", fmt.Sprintf("%s-%d-%%", prefix, year)).
		Order("LENGTH(number) DESC").
		Order("number DESC").
		Limit(1).
		Pluck("number", &numbers).Error
	if err != nil {
		return 0, fmt.Errorf("find highest %s number for %d: %w", prefix, year, err)
	}
	if len(numbers) == 0 {
		return 0, nil
	}
	highest, err := ParseNumber(numbers[0], prefix, year)
	if err != nil {
		return 0, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		seq := models.DocumentSequence{Prefix: prefix, Year: year}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
			return err
		}
		return tx.Model(&models.DocumentSequence{}).
			Where("prefix = ? AND year = ? AND last_value < ?", prefix, year, highest).
			Updates(map[string]interface{}{
				"last_value": highest,
				"updated_at": time.Now(),
			}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("resync sequence %s/%d: %w", prefix, year, err)
	}
	log.Printf("🔢 Sequence %s/%d resynced to %d", prefix, year, highest)
	return highest, nil
}

// ParseNumber extracts the counter of a PREFIX-YEAR-NNNN number.
func ParseNumber(number, prefix string, year int) (int64, error) {
	head := fmt.Sprintf("%s-%d-", prefix, year)
	if !strings.HasPrefix(number, head) {
		return 0, fmt.Errorf("%w: %q is not a %s number", workflow.ErrValidation, number, head)
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(number, head), 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q has no numeric counter", workflow.ErrValidation, number)
	}
	return v, nil
}

// FormatNumber renders PREFIX-YEAR-NNNN.
func FormatNumber(prefix string, year int, value int64) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, value)
}
