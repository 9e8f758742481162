package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RawTransaction is the canonical purchase shape every source adapter
// produces. Amount is in cents.
type RawTransaction struct {
	ExternalID  string    `json:"external_id" validate:"required,max=128"`
	MachineID   string    `json:"machine_id" validate:"required,max=64"`
	CardNumber  string    `json:"card_number" validate:"max=64"`
	Amount      *int64    `json:"amount" validate:"required,gte=0"`
	ProductName string    `json:"product_name" validate:"required,max=240"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
}

type IngestResult struct {
	Transaction *model.ExternalTransaction `json:"transaction"`
	Duplicate   bool                       `json:"duplicate"`
	Match       *MatchResult               `json:"match,omitempty"`
}

type BatchResult struct {
	Received   int      `json:"received"`
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Matched    int      `json:"matched"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors,omitempty"`
}

// IntakeService persists raw purchases idempotently by external id and
// attempts to match each new one straight away.
type IntakeService struct {
	matcher      *MatcherService
	externalRepo *repository.ExternalTransactionRepository
	log          *zap.Logger
}

func NewIntakeService(db *gorm.DB, matcher *MatcherService, log *zap.Logger) *IntakeService {
	return &IntakeService{
		matcher:      matcher,
		externalRepo: repository.NewExternalTransactionRepository(db),
		log:          log,
	}
}

// Ingest stores raw under source. A repeated external id is a no-op and
// returns the stored row with Duplicate set. Matching failures leave the row
// unprocessed and are not reported as errors.
func (s *IntakeService) Ingest(ctx context.Context, source string, raw *RawTransaction) (*IngestResult, error) {
	raw.ExternalID = strings.TrimSpace(raw.ExternalID)
	raw.MachineID = strings.TrimSpace(raw.MachineID)
	raw.CardNumber = model.NormalizeCardNumber(raw.CardNumber)
	raw.ProductName = strings.TrimSpace(raw.ProductName)
	if err := validateStruct(raw); err != nil {
		return nil, err
	}
	if source == "" {
		source = model.SourceAPI
	}

	ext := &model.ExternalTransaction{
		ExternalID:  raw.ExternalID,
		Source:      source,
		MachineID:   raw.MachineID,
		Amount:      *raw.Amount,
		ProductName: raw.ProductName,
		Timestamp:   raw.Timestamp.UTC(),
	}
	if raw.CardNumber != "" {
		card := raw.CardNumber
		ext.CardNumber = &card
	}

	stored, err := s.externalRepo.Create(ctx, ext)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateExternalID) {
			s.log.Info("duplicate external transaction ignored",
				zap.String("external_id", raw.ExternalID),
				zap.String("source", source))
			return &IngestResult{Transaction: stored, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("store external transaction: %w", err)
	}

	result := &IngestResult{Transaction: stored}
	match, err := s.matcher.Match(ctx, stored)
	if err != nil {
		s.log.Warn("matching deferred",
			zap.String("external_id", stored.ExternalID),
			zap.Error(err))
		return result, nil
	}
	result.Match = match
	if match.Status == MatchStatusMatched {
		stored.IsProcessed = true
		stored.MatchedUserID = &match.UserID
	}
	return result, nil
}

// IngestBatch ingests every row, counting instead of failing on bad ones.
func (s *IntakeService) IngestBatch(ctx context.Context, source string, raws []*RawTransaction) *BatchResult {
	out := &BatchResult{Received: len(raws)}
	for _, raw := range raws {
		res, err := s.Ingest(ctx, source, raw)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				out.Invalid++
			}
			out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", raw.ExternalID, err))
			continue
		}
		if res.Duplicate {
			out.Duplicates++
			continue
		}
		out.Created++
		if res.Match != nil && res.Match.Status == MatchStatusMatched {
			out.Matched++
		}
	}
	return out
}
