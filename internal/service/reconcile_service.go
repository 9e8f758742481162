package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reconcileBatchSize = 200

// ReconcileService re-derives cached balances from the ledger. Drift means a
// bug somewhere on a write path; it is repaired and logged loudly.
type ReconcileService struct {
	db              *gorm.DB
	locker          lock.Locker
	rules           Rules
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	externalRepo    *repository.ExternalTransactionRepository
	machineRepo     *repository.MachineRepository
	log             *zap.Logger
	now             func() time.Time
}

func NewReconcileService(db *gorm.DB, locker lock.Locker, rules Rules, log *zap.Logger) *ReconcileService {
	return &ReconcileService{
		db:              db,
		locker:          locker,
		rules:           rules,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		externalRepo:    repository.NewExternalTransactionRepository(db),
		machineRepo:     repository.NewMachineRepository(db),
		log:             log,
		now:             time.Now,
	}
}

type ReconcileResult struct {
	UserID    string `json:"user_id"`
	Cached    int64  `json:"cached"`
	LedgerSum int64  `json:"ledger_sum"`
	Repaired  bool   `json:"repaired"`
}

func (s *ReconcileService) Reconcile(ctx context.Context, userID string) (*ReconcileResult, error) {
	userLock, err := s.locker.Obtain(ctx, lock.UserKey(userID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer userLock.Release(ctx)

	result := &ReconcileResult{UserID: userID}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.userRepo.GetByIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		sum, err := s.transactionRepo.SumPoints(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Cached = user.TotalPoints
		result.LedgerSum = sum
		if sum == user.TotalPoints {
			return nil
		}
		result.Repaired = true
		return s.transactionRepo.RepairBalance(ctx, tx, userID, sum)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("reconcile %s: %w", userID, err)
	}

	if result.Repaired {
		s.log.Error("balance drift repaired",
			zap.String("user_id", userID),
			zap.Int64("cached", result.Cached),
			zap.Int64("ledger_sum", result.LedgerSum))
	}
	return result, nil
}

type ReconcileSummary struct {
	Checked  int                `json:"checked"`
	Repaired []*ReconcileResult `json:"repaired"`
	Failed   int                `json:"failed"`
}

func (s *ReconcileService) ReconcileAll(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{}
	after := ""
	for {
		ids, err := s.userRepo.ListIDs(ctx, after, reconcileBatchSize)
		if err != nil {
			return summary, err
		}
		if len(ids) == 0 {
			return summary, nil
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			res, err := s.Reconcile(ctx, id)
			if err != nil {
				summary.Failed++
				s.log.Warn("reconcile user failed", zap.String("user_id", id), zap.Error(err))
				continue
			}
			summary.Checked++
			if res.Repaired {
				summary.Repaired = append(summary.Repaired, res)
			}
		}
		after = ids[len(ids)-1]
	}
}

type Stats struct {
	TotalUsers          int64            `json:"total_users"`
	LedgerEntries       int64            `json:"ledger_entries"`
	PointsEarned        int64            `json:"points_earned"`
	PointsRedeemed      int64            `json:"points_redeemed"`
	ActiveToday         int64            `json:"active_today"`
	UnprocessedExternal int64            `json:"unprocessed_external"`
	ExternalBySource    map[string]int64 `json:"external_by_source"`
	MachinesOnline      int64            `json:"machines_online"`
}

func (s *ReconcileService) Stats(ctx context.Context) (*Stats, error) {
	users, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	ledger, err := s.transactionRepo.Stats(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.transactionRepo.CountActiveUsersSince(ctx, s.rules.Day(s.now()))
	if err != nil {
		return nil, err
	}
	_, unprocessed, err := s.externalRepo.ListUnprocessed(ctx, 1, 1)
	if err != nil {
		return nil, err
	}
	bySource, err := s.externalRepo.CountBySource(ctx)
	if err != nil {
		return nil, err
	}
	online, err := s.machineRepo.CountOnline(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalUsers:          users,
		LedgerEntries:       ledger.Entries,
		PointsEarned:        ledger.PointsEarned,
		PointsRedeemed:      ledger.PointsRedeemed,
		ActiveToday:         active,
		UnprocessedExternal: unprocessed,
		ExternalBySource:    bySource,
		MachinesOnline:      online,
	}, nil
}
