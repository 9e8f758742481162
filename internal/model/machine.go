package model

import (
	"time"
)

// Machine is a registered vending machine. ID is the code printed after the
// QR prefix, so HIVIS_MACHINE_042 scans machine "042".
type Machine struct {
	ID        string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(128);not null" json:"name"`
	Location  string     `gorm:"type:varchar(256);not null" json:"location"`
	IsOnline  bool       `gorm:"not null;default:false" json:"is_online"`
	LastPing  *time.Time `json:"last_ping,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Machine) TableName() string {
	return "vending_machine"
}
