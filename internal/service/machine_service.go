package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MachineService keeps the registry of vending machines that QR scans are
// checked against.
type MachineService struct {
	machineRepo *repository.MachineRepository
	log         *zap.Logger
	now         func() time.Time
}

func NewMachineService(db *gorm.DB, log *zap.Logger) *MachineService {
	return &MachineService{
		machineRepo: repository.NewMachineRepository(db),
		log:         log,
		now:         time.Now,
	}
}

type RegisterMachineRequest struct {
	ID       string `json:"id" validate:"required,max=64"`
	Name     string `json:"name" validate:"required,max=128"`
	Location string `json:"location" validate:"required,max=256"`
}

// RegisterMachine adds a machine. New machines start online with a fresh ping.
func (s *MachineService) RegisterMachine(ctx context.Context, req *RegisterMachineRequest) (*model.Machine, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	req.Location = strings.TrimSpace(req.Location)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	machine := &model.Machine{
		ID:       req.ID,
		Name:     req.Name,
		Location: req.Location,
		IsOnline: true,
		LastPing: &now,
	}
	if err := s.machineRepo.Create(ctx, machine); err != nil {
		if errors.Is(err, repository.ErrMachineExists) {
			return nil, ErrMachineExists
		}
		return nil, err
	}
	s.log.Info("machine registered", zap.String("machine_id", machine.ID), zap.String("location", machine.Location))
	return machine, nil
}

func (s *MachineService) GetMachine(ctx context.Context, id string) (*model.Machine, error) {
	machine, err := s.machineRepo.GetByID(ctx, strings.TrimSpace(id))
	if errors.Is(err, repository.ErrMachineNotFound) {
		return nil, ErrMachineNotFound
	}
	return machine, err
}

func (s *MachineService) ListMachines(ctx context.Context) ([]*model.Machine, error) {
	return s.machineRepo.List(ctx)
}

// UpdateMachineStatus records a heartbeat from the machine.
func (s *MachineService) UpdateMachineStatus(ctx context.Context, id string, online bool) (*model.Machine, error) {
	id = strings.TrimSpace(id)
	if err := s.machineRepo.UpdateStatus(ctx, id, online, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrMachineNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	if !online {
		s.log.Warn("machine reported offline", zap.String("machine_id", id))
	}
	return s.GetMachine(ctx, id)
}
