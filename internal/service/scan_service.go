package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hivisloyalty/internal/repository"

	"gorm.io/gorm"
)

// ScanService covers purchases the customer reports from the app rather than
// the vending source.
type ScanService struct {
	rules       Rules
	award       *AwardService
	machineRepo *repository.MachineRepository
}

func NewScanService(db *gorm.DB, rules Rules, award *AwardService) *ScanService {
	return &ScanService{
		rules:       rules,
		award:       award,
		machineRepo: repository.NewMachineRepository(db),
	}
}

// ScanQR credits the flat QR reward for a machine code such as
// HIVIS_MACHINE_042. The machine must be registered.
func (s *ScanService) ScanQR(ctx context.Context, userID, qrData string) (*AwardResult, error) {
	qrData = strings.TrimSpace(qrData)
	if !strings.HasPrefix(qrData, s.rules.QRPrefix) {
		return nil, ErrInvalidQRCode
	}
	machineID := strings.TrimPrefix(qrData, s.rules.QRPrefix)
	if machineID == "" {
		return nil, ErrInvalidQRCode
	}
	if _, err := s.machineRepo.GetByID(ctx, machineID); err != nil {
		if errors.Is(err, repository.ErrMachineNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	return s.award.Award(ctx, &AwardRequest{
		UserID:      userID,
		Points:      s.rules.QRPoints,
		Description: fmt.Sprintf("QR scan at machine %s", machineID),
		MachineID:   &machineID,
	})
}

// ManualPurchase credits a purchase the user typed in, priced per whole dollar.
func (s *ScanService) ManualPurchase(ctx context.Context, userID, machineID string, amountCents int64) (*AwardResult, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	machineID = strings.TrimSpace(machineID)
	if machineID == "" {
		return nil, newValidationError("machine_id", "is required")
	}
	amount := amountCents
	return s.award.Award(ctx, &AwardRequest{
		UserID:      userID,
		Points:      s.rules.Points.ForAmount(amountCents),
		Description: fmt.Sprintf("Purchase at machine %s", machineID),
		MachineID:   &machineID,
		Amount:      &amount,
	})
}
