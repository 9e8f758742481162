package repository

import (
	"context"
	"errors"

	"hivisloyalty/internal/model"

	"gorm.io/gorm"
)

type SeasonRepository struct {
	db *gorm.DB
}

func NewSeasonRepository(db *gorm.DB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

func (r *SeasonRepository) GetActive(ctx context.Context, tx *gorm.DB) (*model.Season, error) {
	var season model.Season
	err := txOr(tx, r.db).WithContext(ctx).
		Where("is_active = ?", true).
		Order("year DESC, month DESC").
		First(&season).Error
	return r.one(&season, err)
}

func (r *SeasonRepository) GetByID(ctx context.Context, id int64) (*model.Season, error) {
	var season model.Season
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&season).Error
	return r.one(&season, err)
}

func (r *SeasonRepository) GetByYearMonth(ctx context.Context, tx *gorm.DB, year, month int) (*model.Season, error) {
	var season model.Season
	err := txOr(tx, r.db).WithContext(ctx).Where("year = ? AND month = ?", year, month).First(&season).Error
	return r.one(&season, err)
}

func (r *SeasonRepository) one(season *model.Season, err error) (*model.Season, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}
	return season, nil
}

func (r *SeasonRepository) List(ctx context.Context) ([]*model.Season, error) {
	var seasons []*model.Season
	err := r.db.WithContext(ctx).Order("year DESC, month DESC").Find(&seasons).Error
	return seasons, err
}

// Activate makes season the single active season. A season for the same month
// that already exists is reactivated instead of duplicated.
func (r *SeasonRepository) Activate(ctx context.Context, tx *gorm.DB, season *model.Season) error {
	err := tx.WithContext(ctx).
		Model(&model.Season{}).
		Where("is_active = ?", true).
		Update("is_active", false).Error
	if err != nil {
		return err
	}

	existing, err := r.GetByYearMonth(ctx, tx, season.Year, season.Month)
	switch {
	case err == nil:
		if err := tx.WithContext(ctx).Model(existing).Update("is_active", true).Error; err != nil {
			return err
		}
		*season = *existing
		season.IsActive = true
		return nil
	case errors.Is(err, ErrSeasonNotFound):
		season.IsActive = true
		return tx.WithContext(ctx).Create(season).Error
	default:
		return err
	}
}

// AddMonthlyPoints upserts the (user, season) accumulator.
func (r *SeasonRepository) AddMonthlyPoints(ctx context.Context, tx *gorm.DB, userID string, seasonID int64, suburb string, delta int64) (*model.MonthlyPoints, error) {
	var row model.MonthlyPoints
	err := tx.WithContext(ctx).
		Where("user_id = ? AND season_id = ?", userID, seasonID).
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		row = model.MonthlyPoints{
			UserID:   userID,
			SeasonID: seasonID,
			Suburb:   suburb,
			Points:   delta,
		}
		if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	}

	err = tx.WithContext(ctx).
		Model(&model.MonthlyPoints{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"points": gorm.Expr("points + ?", delta),
			"suburb": suburb,
		}).Error
	if err != nil {
		return nil, err
	}
	row.Points += delta
	row.Suburb = suburb
	return &row, nil
}

// ListBySuburb returns the season's rows for one suburb in ranking order:
// points descending, earliest row first among ties.
func (r *SeasonRepository) ListBySuburb(ctx context.Context, tx *gorm.DB, seasonID int64, suburb string) ([]*model.MonthlyPoints, error) {
	var rows []*model.MonthlyPoints
	err := txOr(tx, r.db).WithContext(ctx).
		Where("season_id = ? AND suburb = ?", seasonID, suburb).
		Order("points DESC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *SeasonRepository) ListBySeason(ctx context.Context, seasonID int64) ([]*model.MonthlyPoints, error) {
	var rows []*model.MonthlyPoints
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("suburb ASC").
		Order("`rank` ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *SeasonRepository) UpdateRank(ctx context.Context, tx *gorm.DB, id int64, rank int) error {
	return tx.WithContext(ctx).
		Model(&model.MonthlyPoints{}).
		Where("id = ?", id).
		UpdateColumn("rank", rank).Error
}
