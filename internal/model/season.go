package model

import (
	"fmt"
	"time"
)

// Season is one calendar month of leaderboard standings. At most one season is
// active at a time.
type Season struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Year      int       `gorm:"not null;uniqueIndex:idx_season_year_month" json:"year"`
	Month     int       `gorm:"not null;uniqueIndex:idx_season_year_month" json:"month"`
	Name      string    `gorm:"type:varchar(32);not null" json:"name"`
	IsActive  bool      `gorm:"not null;default:false;index" json:"is_active"`
	StartDate time.Time `gorm:"not null" json:"start_date"`
	EndDate   time.Time `gorm:"not null" json:"end_date"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Season) TableName() string {
	return "season"
}

// Covers reports whether t (already in the season's time zone) falls in the
// season's calendar month.
func (s *Season) Covers(t time.Time) bool {
	return s.Year == t.Year() && s.Month == int(t.Month())
}

// NewSeasonFor builds the season for the month containing t. StartDate is the
// first day of the month, EndDate the last day.
func NewSeasonFor(t time.Time) *Season {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 1, -1)
	return &Season{
		Year:      t.Year(),
		Month:     int(t.Month()),
		Name:      fmt.Sprintf("%s %d", t.Month().String(), t.Year()),
		IsActive:  true,
		StartDate: start,
		EndDate:   end,
	}
}

// UnknownSuburb files monthly points of users who have not set a suburb.
const UnknownSuburb = "Unknown"

// CohortSuburb is the suburb a user's monthly points are ranked under.
func CohortSuburb(suburb string) string {
	if suburb == "" {
		return UnknownSuburb
	}
	return suburb
}

// MonthlyPoints accumulates a user's points inside one season. Suburb is copied
// from the user at write time (UnknownSuburb when unset); Rank is positional
// within (season, suburb).
type MonthlyPoints struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_monthly_user_season" json:"user_id"`
	SeasonID  int64     `gorm:"not null;uniqueIndex:idx_monthly_user_season;index:idx_monthly_season_suburb" json:"season_id"`
	Suburb    string    `gorm:"type:varchar(128);not null;index:idx_monthly_season_suburb" json:"suburb"`
	Points    int64     `gorm:"not null;default:0" json:"points"`
	Rank      int       `gorm:"not null;default:0" json:"rank"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MonthlyPoints) TableName() string {
	return "monthly_points"
}
