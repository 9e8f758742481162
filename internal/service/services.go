package service

import (
	"hivisloyalty/internal/infrastructure/lock"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services is the wired set of loyalty services sharing one store, one locker
// and one notifier.
type Services struct {
	Rules         Rules
	Users         *UserService
	Seasons       *SeasonService
	Award         *AwardService
	Matcher       *MatcherService
	Intake        *IntakeService
	Redemption    *RedemptionService
	Referral      *ReferralService
	Scan          *ScanService
	Reconcile     *ReconcileService
	Machines      *MachineService
	Notifications *NotificationService
}

func NewServices(db *gorm.DB, locker lock.Locker, rules Rules, notifier Notifier, log *zap.Logger) *Services {
	s := &Services{Rules: rules}
	s.Users = NewUserService(db, log)
	s.Seasons = NewSeasonService(db, locker, rules, log)
	s.Award = NewAwardService(db, locker, rules, s.Seasons, notifier, log)
	s.Matcher = NewMatcherService(db, rules, s.Award, log)
	s.Intake = NewIntakeService(db, s.Matcher, log)
	s.Redemption = NewRedemptionService(db, locker, rules, notifier, log)
	s.Referral = NewReferralService(db, locker, rules, s.Award, notifier, log)
	s.Scan = NewScanService(db, rules, s.Award)
	s.Reconcile = NewReconcileService(db, locker, rules, log)
	s.Machines = NewMachineService(db, log)
	s.Notifications = NewNotificationService(db, notifier, log)
	return s
}
