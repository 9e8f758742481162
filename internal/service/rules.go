package service

import (
	"strings"
	"time"

	"hivisloyalty/internal/config"
	"hivisloyalty/internal/model"
)

// Rules is the single source of every loyalty threshold. It is built once from
// configuration and injected into the services that need it.
type Rules struct {
	TradieThreshold      int64
	ForemanThreshold     int64
	PunchCardTarget      int
	PunchCardBonus       int64
	StreakThreshold      int
	QRPoints             int64
	QRPrefix             string
	ReferrerBonus        int64
	RefereeBonus         int64
	RedemptionCodePrefix string
	StreakCodePrefix     string
	Location             *time.Location
	Points               PointTable
}

func NewRules(cfg *config.Config) Rules {
	l := cfg.Loyalty
	return Rules{
		TradieThreshold:      l.TradieThreshold,
		ForemanThreshold:     l.ForemanThreshold,
		PunchCardTarget:      l.PunchCardTarget,
		PunchCardBonus:       l.PunchCardBonus,
		StreakThreshold:      l.StreakThreshold,
		QRPoints:             l.QRPoints,
		QRPrefix:             l.QRPrefix,
		ReferrerBonus:        l.ReferrerBonus,
		RefereeBonus:         l.RefereeBonus,
		RedemptionCodePrefix: l.RedemptionCodePrefix,
		StreakCodePrefix:     l.StreakCodePrefix,
		Location:             l.Location(),
		Points:               NewPointTable(cfg.Points),
	}
}

// TierFor maps a balance to the tier it qualifies for.
func (r Rules) TierFor(total int64) string {
	switch {
	case total >= r.ForemanThreshold:
		return model.TierForeman
	case total >= r.TradieThreshold:
		return model.TierTradie
	default:
		return model.TierApprentice
	}
}

// Promote returns the tier after reaching total. It never moves down.
func (r Rules) Promote(current string, total int64) string {
	target := r.TierFor(total)
	if model.CanPromote(current, target) {
		return target
	}
	if current == "" {
		return model.TierApprentice
	}
	return current
}

// Day truncates t to midnight in the rules' time zone.
func (r Rules) Day(t time.Time) time.Time {
	t = t.In(r.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.Location)
}

// PointTable prices a product by substring heuristics on its name.
type PointTable struct {
	Large, Small, Snack, Default int64
	PerDollar                    int64

	largeKeywords []string
	smallKeywords []string
	snackKeywords []string
}

func NewPointTable(cfg config.PointsConfig) PointTable {
	return PointTable{
		Large:         cfg.LargeDrink,
		Small:         cfg.SmallDrink,
		Snack:         cfg.Snack,
		Default:       cfg.Default,
		PerDollar:     cfg.PerDollar,
		largeKeywords: lowerAll(cfg.LargeKeywords),
		smallKeywords: lowerAll(cfg.SmallKeywords),
		snackKeywords: lowerAll(cfg.SnackKeywords),
	}
}

// Value is pure: the same product name always earns the same points.
func (p PointTable) Value(productName string) int64 {
	name := strings.ToLower(productName)
	switch {
	case containsAny(name, p.largeKeywords):
		return p.Large
	case containsAny(name, p.smallKeywords):
		return p.Small
	case containsAny(name, p.snackKeywords):
		return p.Snack
	default:
		return p.Default
	}
}

// ForAmount prices a manually entered purchase: whole dollars times PerDollar.
func (p PointTable) ForAmount(amountCents int64) int64 {
	if amountCents <= 0 {
		return 0
	}
	return amountCents / 100 * p.PerDollar
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
