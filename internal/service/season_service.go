package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"hivisloyalty/internal/infrastructure/lock"
	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeasonService keeps the monthly accumulators and both leaderboards.
type SeasonService struct {
	db         *gorm.DB
	locker     lock.Locker
	rules      Rules
	seasonRepo *repository.SeasonRepository
	userRepo   *repository.UserRepository
	log        *zap.Logger
	now        func() time.Time
}

func NewSeasonService(db *gorm.DB, locker lock.Locker, rules Rules, log *zap.Logger) *SeasonService {
	return &SeasonService{
		db:         db,
		locker:     locker,
		rules:      rules,
		seasonRepo: repository.NewSeasonRepository(db),
		userRepo:   repository.NewUserRepository(db),
		log:        log,
		now:        time.Now,
	}
}

func (s *SeasonService) WithClock(now func() time.Time) *SeasonService {
	s.now = now
	return s
}

// EnsureCurrentSeason returns the active season for the current month,
// deactivating a stale season and creating the new one if needed.
func (s *SeasonService) EnsureCurrentSeason(ctx context.Context) (*model.Season, error) {
	now := s.now().In(s.rules.Location)

	active, err := s.seasonRepo.GetActive(ctx, nil)
	if err == nil && active.Covers(now) {
		return active, nil
	}
	if err != nil && !errors.Is(err, repository.ErrSeasonNotFound) {
		return nil, fmt.Errorf("load active season: %w", err)
	}

	l, err := s.locker.Obtain(ctx, lock.SeasonKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer l.Release(ctx)

	// another caller may have rolled over while we waited
	active, err = s.seasonRepo.GetActive(ctx, nil)
	if err == nil && active.Covers(now) {
		return active, nil
	}

	season := model.NewSeasonFor(now)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.seasonRepo.Activate(ctx, tx, season)
	})
	if err != nil {
		existing, getErr := s.seasonRepo.GetByYearMonth(ctx, nil, season.Year, season.Month)
		if getErr == nil && existing.IsActive {
			return existing, nil
		}
		return nil, fmt.Errorf("activate season %s: %w", season.Name, err)
	}

	s.log.Info("season activated",
		zap.Int64("season_id", season.ID),
		zap.String("name", season.Name))
	return season, nil
}

// addInTx adds delta to the user's accumulator for season inside the caller's
// transaction. Ranks are recomputed separately once the transaction commits.
func (s *SeasonService) addInTx(ctx context.Context, tx *gorm.DB, season *model.Season, userID, suburb string, delta int64) (*model.MonthlyPoints, error) {
	return s.seasonRepo.AddMonthlyPoints(ctx, tx, userID, season.ID, model.CohortSuburb(suburb), delta)
}

// RecordMonthlyPoints adds delta to the user's current-season total and
// re-ranks the user's suburb.
func (s *SeasonService) RecordMonthlyPoints(ctx context.Context, userID, suburb string, delta int64) (*model.MonthlyPoints, error) {
	suburb = model.CohortSuburb(suburb)
	season, err := s.EnsureCurrentSeason(ctx)
	if err != nil {
		return nil, err
	}
	var row *model.MonthlyPoints
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		row, err = s.addInTx(ctx, tx, season, userID, suburb, delta)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record monthly points: %w", err)
	}
	if err := s.RecomputeRanks(ctx, season.ID, suburb); err != nil {
		return nil, err
	}
	return row, nil
}

// RecomputeRanks rewrites positional ranks for one (season, suburb): points
// descending, earlier rows first among ties. Ties never share a rank.
func (s *SeasonService) RecomputeRanks(ctx context.Context, seasonID int64, suburb string) error {
	l, err := s.locker.Obtain(ctx, lock.RankKey(seasonID, suburb))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer l.Release(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := s.seasonRepo.ListBySuburb(ctx, tx, seasonID, suburb)
		if err != nil {
			return err
		}
		for i, row := range rows {
			if row.Rank == i+1 {
				continue
			}
			if err := s.seasonRepo.UpdateRank(ctx, tx, row.ID, i+1); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SeasonService) GetCurrentSeason(ctx context.Context) (*model.Season, error) {
	return s.EnsureCurrentSeason(ctx)
}

func (s *SeasonService) ListSeasons(ctx context.Context) ([]*model.Season, error) {
	return s.seasonRepo.List(ctx)
}

type MonthlyEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Points      int64  `json:"points"`
}

type SuburbMonthly struct {
	Suburb  string          `json:"suburb"`
	Entries []*MonthlyEntry `json:"entries"`
}

type MonthlyLeaderboard struct {
	Season  *model.Season    `json:"season"`
	Suburbs []*SuburbMonthly `json:"suburbs"`
}

// GetMonthlyLeaderboard is the seasonal view: per-suburb standings by monthly
// points. Users without a suburb are grouped under UnknownSuburb.
func (s *SeasonService) GetMonthlyLeaderboard(ctx context.Context, seasonID int64) (*MonthlyLeaderboard, error) {
	season, err := s.seasonRepo.GetByID(ctx, seasonID)
	if err != nil {
		if errors.Is(err, repository.ErrSeasonNotFound) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}

	rows, err := s.seasonRepo.ListBySeason(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.UserID)
	}
	users, err := s.userRepo.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	bySuburb := make(map[string]*SuburbMonthly)
	var order []string
	for _, row := range rows {
		suburb := model.CohortSuburb(row.Suburb)
		group, ok := bySuburb[suburb]
		if !ok {
			group = &SuburbMonthly{Suburb: suburb}
			bySuburb[suburb] = group
			order = append(order, suburb)
		}
		name := row.UserID
		if u, ok := users[row.UserID]; ok {
			name = u.DisplayName()
		}
		group.Entries = append(group.Entries, &MonthlyEntry{
			Rank:        row.Rank,
			UserID:      row.UserID,
			DisplayName: name,
			Points:      row.Points,
		})
	}

	board := &MonthlyLeaderboard{Season: season, Suburbs: make([]*SuburbMonthly, 0, len(order))}
	for _, suburb := range order {
		group := bySuburb[suburb]
		sort.SliceStable(group.Entries, func(i, j int) bool {
			return group.Entries[i].Points > group.Entries[j].Points
		})
		board.Suburbs = append(board.Suburbs, group)
	}
	return board, nil
}

type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Tier        string `json:"tier"`
	TotalPoints int64  `json:"total_points"`
}

type SuburbLeaderboard struct {
	Suburb      string              `json:"suburb"`
	TotalPoints int64               `json:"total_points"`
	Users       []*LeaderboardEntry `json:"users"`
}

// GetLeaderboardBySuburb is the all-time view: users grouped by suburb and
// ranked by their total balance, suburbs ordered by combined balance.
func (s *SeasonService) GetLeaderboardBySuburb(ctx context.Context) ([]*SuburbLeaderboard, error) {
	users, err := s.userRepo.ListWithSuburb(ctx)
	if err != nil {
		return nil, err
	}

	bySuburb := make(map[string]*SuburbLeaderboard)
	var boards []*SuburbLeaderboard
	for _, u := range users {
		board, ok := bySuburb[u.Suburb]
		if !ok {
			board = &SuburbLeaderboard{Suburb: u.Suburb}
			bySuburb[u.Suburb] = board
			boards = append(boards, board)
		}
		board.TotalPoints += u.TotalPoints
		board.Users = append(board.Users, &LeaderboardEntry{
			Rank:        len(board.Users) + 1,
			UserID:      u.ID,
			DisplayName: u.DisplayName(),
			Tier:        u.LoyaltyTier,
			TotalPoints: u.TotalPoints,
		})
	}

	sort.SliceStable(boards, func(i, j int) bool {
		return boards[i].TotalPoints > boards[j].TotalPoints
	})
	return boards, nil
}
