package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shashiranjanraj/ventas/app/models"
	"github.com/shashiranjanraj/ventas/pkg/orm"
)

var ErrSyncFailureNotFound = errors.New("sync failure: not found")

// SyncFailureRepository stores drafts devices could not commit.
type SyncFailureRepository struct {
	db *gorm.DB
}

func NewSyncFailureRepository(db *gorm.DB) *SyncFailureRepository {
	return &SyncFailureRepository{db: db}
}

// Record stores a device report. A repeat of the same device and local id
// refreshes the reason instead of adding a row.
func (r *SyncFailureRepository) Record(ctx context.Context, rep models.SyncFailureReport) (*models.SyncFailure, error) {
	payload, err := json.Marshal(rep.Draft)
	if err != nil {
		return nil, fmt.Errorf("sync failure: encode draft: %w", err)
	}
	f := &models.SyncFailure{
		DeviceID: rep.DeviceID,
		LocalID:  rep.LocalID,
		Code:     rep.Code,
		Reason:   rep.Reason,
		Payload:  string(payload),
	}
	if !rep.FailedAt.IsZero() {
		f.CreatedAt = rep.FailedAt
	}

	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "local_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"code", "reason", "payload"}),
	}).Create(f).Error
	if err != nil {
		return nil, fmt.Errorf("sync failure: record %s/%s: %w", rep.DeviceID, rep.LocalID, err)
	}

	var stored models.SyncFailure
	err = r.db.WithContext(ctx).
		Where("device_id = ? AND local_id = ?", rep.DeviceID, rep.LocalID).
		Take(&stored).Error
	if err != nil {
		return nil, fmt.Errorf("sync failure: reload: %w", err)
	}
	return &stored, nil
}

// List returns failures newest first. open limits it to unacknowledged ones.
func (r *SyncFailureRepository) List(ctx context.Context, open bool, page, perPage int) ([]models.SyncFailure, orm.Pagination, error) {
	var out []models.SyncFailure
	p, err := orm.From(r.db).Model(&models.SyncFailure{}).
		WhereIf(open, "acknowledged_at IS NULL").
		OrderBy("created_at DESC, id DESC").
		Paginate(ctx, page, perPage, &out)
	if err != nil {
		return nil, orm.Pagination{}, fmt.Errorf("sync failure: list: %w", err)
	}
	return out, p, nil
}

// Acknowledge marks a failure as handled by operator. Acknowledging twice
// keeps the first acknowledgement.
func (r *SyncFailureRepository) Acknowledge(ctx context.Context, id uint, operator string) (*models.SyncFailure, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.SyncFailure{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Updates(map[string]any{"acknowledged_at": now, "acknowledged_by": operator})
	if res.Error != nil {
		return nil, fmt.Errorf("sync failure: acknowledge %d: %w", id, res.Error)
	}

	var f models.SyncFailure
	err := r.db.WithContext(ctx).First(&f, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrSyncFailureNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("sync failure: load %d: %w", id, err)
	}
	return &f, nil
}
