package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"hivisloyalty/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if isDuplicate(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	var user model.User
	err := txOr(tx, r.db).WithContext(ctx).Where("id = ?", id).First(&user).Error
	return r.one(&user, err)
}

// GetByIDForUpdate row-locks the user for the rest of tx.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	return r.one(&user, err)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error
	return r.one(&user, err)
}

func (r *UserRepository) GetByCardNumber(ctx context.Context, cardNumber string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("card_number = ?", cardNumber).First(&user).Error
	return r.one(&user, err)
}

func (r *UserRepository) GetByReferralCode(ctx context.Context, tx *gorm.DB, code string) (*model.User, error) {
	var user model.User
	err := txOr(tx, r.db).WithContext(ctx).Where("referral_code = ?", strings.ToUpper(code)).First(&user).Error
	return r.one(&user, err)
}

func (r *UserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("referral_code = ?", code).Count(&n).Error
	return n > 0, err
}

func (r *UserRepository) one(user *model.User, err error) (*model.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// SetCardNumber links (or with nil, unlinks) a payment card.
func (r *UserRepository) SetCardNumber(ctx context.Context, userID string, cardNumber *string) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("card_number", cardNumber)
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return ErrCardNumberTaken
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID, firstName, lastName, suburb string) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"first_name": firstName,
			"last_name":  lastName,
			"suburb":     suburb,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// LoyaltyState is every award-engine owned column except total_points, which
// only the ledger writer moves.
type LoyaltyState struct {
	LoyaltyTier        string
	PunchCardProgress  int
	CurrentStreak      int
	StreakRewardEarned bool
	LastPurchaseDate   *time.Time
}

func (r *UserRepository) SaveLoyaltyState(ctx context.Context, tx *gorm.DB, userID string, s LoyaltyState) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"loyalty_tier":         s.LoyaltyTier,
			"punch_card_progress":  s.PunchCardProgress,
			"current_streak":       s.CurrentStreak,
			"streak_reward_earned": s.StreakRewardEarned,
			"last_purchase_date":   s.LastPurchaseDate,
		}).Error
}

func (r *UserRepository) SaveTier(ctx context.Context, tx *gorm.DB, userID, tier string) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("loyalty_tier", tier).Error
}

func (r *UserRepository) ResetStreakReward(ctx context.Context, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("streak_reward_earned", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetReferredBy records the referrer once; a second call fails with
// ErrReferralAlreadyApplied.
func (r *UserRepository) SetReferredBy(ctx context.Context, tx *gorm.DB, userID, referrerID string) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND referred_by IS NULL", userID).
		Update("referred_by", referrerID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReferralAlreadyApplied
	}
	return nil
}

func (r *UserRepository) IncrementReferralCount(ctx context.Context, tx *gorm.DB, userID string) error {
	return tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("referral_count", gorm.Expr("referral_count + 1")).Error
}

// ListWithSuburb returns every user that belongs to a leaderboard cohort,
// highest balance first.
func (r *UserRepository) ListWithSuburb(ctx context.Context) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Where("suburb <> ''").
		Order("total_points DESC").
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

func (r *UserRepository) ListByIDs(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []*model.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// ListIDs pages through user ids in a stable order.
func (r *UserRepository) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// List pages through users, newest first.
func (r *UserRepository) List(ctx context.Context, page, pageSize int) ([]*model.User, int64, error) {
	var users []*model.User
	var total int64

	query := r.db.WithContext(ctx).Model(&model.User{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.
		Order("created_at DESC").
		Order("id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error
	return users, total, err
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, err
}
