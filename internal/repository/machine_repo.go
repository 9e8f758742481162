package repository

import (
	"context"
	"errors"
	"time"

	"hivisloyalty/internal/model"

	"gorm.io/gorm"
)

type MachineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) *MachineRepository {
	return &MachineRepository{db: db}
}

func (r *MachineRepository) Create(ctx context.Context, machine *model.Machine) error {
	err := r.db.WithContext(ctx).Create(machine).Error
	if isDuplicate(err) {
		return ErrMachineExists
	}
	return err
}

func (r *MachineRepository) GetByID(ctx context.Context, id string) (*model.Machine, error) {
	var machine model.Machine
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&machine).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	return &machine, nil
}

func (r *MachineRepository) List(ctx context.Context) ([]*model.Machine, error) {
	var machines []*model.Machine
	err := r.db.WithContext(ctx).Order("id ASC").Find(&machines).Error
	return machines, err
}

// UpdateStatus records a heartbeat. last_ping always moves, so a missing row
// is the only way to affect nothing.
func (r *MachineRepository) UpdateStatus(ctx context.Context, id string, online bool, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&model.Machine{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_online": online,
			"last_ping": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMachineNotFound
	}
	return nil
}

func (r *MachineRepository) CountOnline(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Machine{}).Where("is_online = ?", true).Count(&n).Error
	return n, err
}
