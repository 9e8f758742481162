package model

import (
	"time"
)

const (
	RewardCategoryDrink = "drink"
	RewardCategorySnack = "snack"
	RewardCategoryBonus = "bonus"
)

type Reward struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	Description string    `gorm:"type:varchar(512)" json:"description"`
	PointsCost  int64     `gorm:"not null" json:"points_cost"`
	Category    string    `gorm:"type:varchar(20);not null" json:"category"`
	IsActive    bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Reward) TableName() string {
	return "reward"
}
