package repository

import (
	"context"
	"errors"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/pkg/idgen"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository owns the points ledger. Append is the only path that
// writes users.total_points, so the cached balance and the ledger always move
// together inside one database transaction.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Append inserts entry and moves the user's balance by entry.Points. tx must be
// an open transaction. Negative entries are refused with ErrBalanceNotEnough
// when the balance would drop below zero.
func (r *TransactionRepository) Append(ctx context.Context, tx *gorm.DB, entry *model.Transaction) error {
	var user struct {
		TotalPoints int64
	}
	err := tx.WithContext(ctx).
		Model(&model.User{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("total_points").
		Where("id = ?", entry.UserID).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if entry.TransactionNo == "" {
		entry.TransactionNo = idgen.GenerateTransactionNo()
	}
	entry.Description = model.TruncateDescription(entry.Description)
	entry.BalanceBefore = user.TotalPoints
	entry.BalanceAfter = user.TotalPoints + entry.Points
	if entry.BalanceAfter < 0 {
		return ErrBalanceNotEnough
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	query := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", entry.UserID)
	if entry.Points < 0 {
		query = query.Where("total_points >= ?", -entry.Points)
	}
	result := query.UpdateColumn("total_points", gorm.Expr("total_points + ?", entry.Points))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBalanceNotEnough
	}
	return nil
}

func (r *TransactionRepository) GetByRedemptionCode(ctx context.Context, code string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("redemption_code = ?", code).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// MarkRedeemed flips is_redeemed false -> true. Exactly one concurrent caller
// wins; the others get ErrAlreadyRedeemed.
func (r *TransactionRepository) MarkRedeemed(ctx context.Context, code string, at time.Time) (*model.Transaction, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("redemption_code = ? AND is_redeemed = ?", code, false).
		Updates(map[string]interface{}{
			"is_redeemed": true,
			"redeemed_at": at,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	trans, err := r.GetByRedemptionCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return trans, ErrAlreadyRedeemed
	}
	return trans, nil
}

func (r *TransactionRepository) ListByUserID(ctx context.Context, userID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

func (r *TransactionRepository) ListByExternalID(ctx context.Context, externalID int64) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("external_transaction_id = ?", externalID).
		Order("id ASC").
		Find(&transactions).Error
	return transactions, err
}

// SumPoints re-derives a user's balance from the ledger.
func (r *TransactionRepository) SumPoints(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	var sum int64
	err := txOr(tx, r.db).WithContext(ctx).
		Model(&model.Transaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	return sum, err
}

// RepairBalance overwrites a drifted cached balance with the ledger sum. It is
// the reconciliation escape hatch and is never called on the award path.
func (r *TransactionRepository) RepairBalance(ctx context.Context, tx *gorm.DB, userID string, ledgerSum int64) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("total_points", ledgerSum).Error
}

type LedgerStats struct {
	Entries        int64
	PointsEarned   int64
	PointsRedeemed int64
}

func (r *TransactionRepository) Stats(ctx context.Context) (*LedgerStats, error) {
	var s LedgerStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Transaction{}).Count(&s.Entries).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Transaction{}).
		Where("points > 0").
		Select("COALESCE(SUM(points), 0)").
		Scan(&s.PointsEarned).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Transaction{}).
		Where("type = ?", model.TransactionTypeRedemption).
		Select("COALESCE(SUM(-points), 0)").
		Scan(&s.PointsRedeemed).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// CountActiveUsersSince counts distinct users with a purchase at or after since.
func (r *TransactionRepository) CountActiveUsersSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("type = ? AND created_at >= ?", model.TransactionTypePurchase, since).
		Distinct("user_id").
		Count(&n).Error
	return n, err
}
