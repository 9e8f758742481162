package repository

import (
	"context"
	"errors"
	"time"

	"hivisloyalty/internal/model"

	"gorm.io/gorm"
)

type ExternalTransactionRepository struct {
	db *gorm.DB
}

func NewExternalTransactionRepository(db *gorm.DB) *ExternalTransactionRepository {
	return &ExternalTransactionRepository{db: db}
}

// Create stores a new raw purchase. When external_id already exists the stored
// row is returned together with ErrDuplicateExternalID.
func (r *ExternalTransactionRepository) Create(ctx context.Context, ext *model.ExternalTransaction) (*model.ExternalTransaction, error) {
	err := r.db.WithContext(ctx).Create(ext).Error
	if err == nil {
		return ext, nil
	}
	existing, getErr := r.GetByExternalID(ctx, ext.ExternalID)
	if getErr == nil {
		return existing, ErrDuplicateExternalID
	}
	if isDuplicate(err) {
		return nil, ErrDuplicateExternalID
	}
	return nil, err
}

func (r *ExternalTransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.ExternalTransaction, error) {
	var ext model.ExternalTransaction
	err := txOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&ext).Error
	return r.one(&ext, err)
}

func (r *ExternalTransactionRepository) GetByExternalID(ctx context.Context, externalID string) (*model.ExternalTransaction, error) {
	var ext model.ExternalTransaction
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&ext).Error
	return r.one(&ext, err)
}

func (r *ExternalTransactionRepository) one(ext *model.ExternalTransaction, err error) (*model.ExternalTransaction, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExternalNotFound
		}
		return nil, err
	}
	return ext, nil
}

// MarkProcessed is the compare-and-set that guards against crediting one raw
// purchase twice. It must run inside the award transaction.
func (r *ExternalTransactionRepository) MarkProcessed(ctx context.Context, tx *gorm.DB, id int64, userID string, at time.Time) error {
	result := tx.WithContext(ctx).
		Model(&model.ExternalTransaction{}).
		Where("id = ? AND is_processed = ?", id, false).
		Updates(map[string]interface{}{
			"is_processed":    true,
			"matched_user_id": userID,
			"processed_at":    at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrExternalProcessed
	}
	return nil
}

func (r *ExternalTransactionRepository) ListUnprocessed(ctx context.Context, page, pageSize int) ([]*model.ExternalTransaction, int64, error) {
	var list []*model.ExternalTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ExternalTransaction{}).Where("is_processed = ?", false)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&list).Error
	return list, total, err
}

// CountBySource reports how many rows each source has delivered.
func (r *ExternalTransactionRepository) CountBySource(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Source string
		N      int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.ExternalTransaction{}).
		Select("source, COUNT(*) AS n").
		Group("source").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Source] = row.N
	}
	return out, nil
}
