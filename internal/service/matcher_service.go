package service

import (
	"context"
	"errors"
	"fmt"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MatchStatusMatched          = "matched"
	MatchStatusUnmatched        = "unmatched"
	MatchStatusAlreadyProcessed = "already_processed"
)

type MatchResult struct {
	Status string       `json:"status"`
	UserID string       `json:"user_id,omitempty"`
	Award  *AwardResult `json:"award,omitempty"`
}

// MatcherService attributes raw purchases to users. Automatic and manual
// matching share the same award path.
type MatcherService struct {
	rules        Rules
	award        *AwardService
	userRepo     *repository.UserRepository
	externalRepo *repository.ExternalTransactionRepository
	log          *zap.Logger
}

func NewMatcherService(db *gorm.DB, rules Rules, award *AwardService, log *zap.Logger) *MatcherService {
	return &MatcherService{
		rules:        rules,
		award:        award,
		userRepo:     repository.NewUserRepository(db),
		externalRepo: repository.NewExternalTransactionRepository(db),
		log:          log,
	}
}

// Match looks the purchase's card number up. An unknown or missing card is the
// normal unmatched outcome, not an error.
func (s *MatcherService) Match(ctx context.Context, ext *model.ExternalTransaction) (*MatchResult, error) {
	if ext.IsProcessed {
		return s.alreadyProcessed(ext), nil
	}
	if ext.CardNumber == nil {
		return &MatchResult{Status: MatchStatusUnmatched}, nil
	}
	card := model.NormalizeCardNumber(*ext.CardNumber)
	if card == "" {
		return &MatchResult{Status: MatchStatusUnmatched}, nil
	}

	user, err := s.userRepo.GetByCardNumber(ctx, card)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.log.Debug("no user for card",
				zap.String("external_id", ext.ExternalID))
			return &MatchResult{Status: MatchStatusUnmatched}, nil
		}
		return nil, fmt.Errorf("lookup card: %w", err)
	}

	result, err := s.credit(ctx, ext, user.ID)
	if errors.Is(err, ErrAlreadyProcessed) {
		return &MatchResult{Status: MatchStatusAlreadyProcessed}, nil
	}
	return result, err
}

// ManualMatch is the admin resolution path for the unprocessed queue.
func (s *MatcherService) ManualMatch(ctx context.Context, externalID int64, userID string) (*MatchResult, error) {
	ext, err := s.externalRepo.GetByID(ctx, nil, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrExternalNotFound) {
			return nil, ErrExternalNotFound
		}
		return nil, err
	}
	if ext.IsProcessed {
		return nil, ErrAlreadyProcessed
	}
	result, err := s.credit(ctx, ext, userID)
	if err != nil {
		return nil, err
	}
	s.log.Info("external transaction matched manually",
		zap.Int64("id", ext.ID),
		zap.String("external_id", ext.ExternalID),
		zap.String("user_id", userID))
	return result, nil
}

func (s *MatcherService) credit(ctx context.Context, ext *model.ExternalTransaction, userID string) (*MatchResult, error) {
	machineID := ext.MachineID
	amount := ext.Amount
	id := ext.ID
	award, err := s.award.Award(ctx, &AwardRequest{
		UserID:                userID,
		Points:                s.rules.Points.Value(ext.ProductName),
		Description:           fmt.Sprintf("Purchase: %s", ext.ProductName),
		MachineID:             &machineID,
		ExternalTransactionID: &id,
		Amount:                &amount,
		CardNumber:            ext.CardNumber,
	})
	if err != nil {
		return nil, err
	}
	return &MatchResult{Status: MatchStatusMatched, UserID: userID, Award: award}, nil
}

func (s *MatcherService) alreadyProcessed(ext *model.ExternalTransaction) *MatchResult {
	r := &MatchResult{Status: MatchStatusAlreadyProcessed}
	if ext.MatchedUserID != nil {
		r.UserID = *ext.MatchedUserID
	}
	return r
}

func (s *MatcherService) GetUnprocessed(ctx context.Context, page, pageSize int) ([]*model.ExternalTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.externalRepo.ListUnprocessed(ctx, page, pageSize)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
