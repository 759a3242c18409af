package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"task-manager/internal/model"
)

// ReportRepository handles the per-user digest records.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

func (r *ReportRepository) WithTx(tx *gorm.DB) *ReportRepository {
	return &ReportRepository{db: tx}
}

func (r *ReportRepository) Create(ctx context.Context, report *model.Report) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(report).Error; err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *ReportRepository) FindByUser(ctx context.Context, userID uint) (*model.Report, error) {
	var report model.Report
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// ListOverdue returns reports never sent or last sent at or before cutoff,
// with their users loaded.
func (r *ReportRepository) ListOverdue(ctx context.Context, cutoff time.Time) ([]model.Report, error) {
	var reports []model.Report
	if err := r.db.WithContext(ctx).
		Preload("User").
		Where("last_report IS NULL OR last_report <= ?", cutoff.UTC()).
		Order("id ASC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list overdue reports: %w", err)
	}
	return reports, nil
}

// MarkSent stores the new last_report of a single report.
func (r *ReportRepository) MarkSent(ctx context.Context, report *model.Report, sentAt time.Time) error {
	sentAt = sentAt.UTC()
	if err := r.db.WithContext(ctx).Model(&model.Report{ID: report.ID}).
		Update("last_report", sentAt).Error; err != nil {
		return fmt.Errorf("mark report %d sent: %w", report.ID, err)
	}
	report.LastReport = &sentAt
	return nil
}

func (r *ReportRepository) UpdateTiming(ctx context.Context, report *model.Report, timing int) error {
	if err := r.db.WithContext(ctx).Model(&model.Report{ID: report.ID}).
		Update("timing", timing).Error; err != nil {
		return fmt.Errorf("update report timing: %w", err)
	}
	report.Timing = timing
	return nil
}
