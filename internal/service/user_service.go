package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hivisloyalty/internal/model"
	"hivisloyalty/internal/repository"
	"hivisloyalty/pkg/idgen"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const referralCodeAttempts = 8

type UserService struct {
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	log             *zap.Logger
}

func NewUserService(db *gorm.DB, log *zap.Logger) *UserService {
	return &UserService{
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		log:             log,
	}
}

type CreateUserRequest struct {
	Email     string `json:"email" validate:"required,email,max=191"`
	FirstName string `json:"first_name" validate:"max=64"`
	LastName  string `json:"last_name" validate:"max=64"`
	Suburb    string `json:"suburb" validate:"max=128"`
}

func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	code, err := s.uniqueReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		FirstName:    titleCase(req.FirstName),
		LastName:     titleCase(req.LastName),
		Suburb:       titleCase(req.Suburb),
		LoyaltyTier:  model.TierApprentice,
		ReferralCode: code,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

func (s *UserService) uniqueReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < referralCodeAttempts; i++ {
		code := idgen.ReferralCode()
		exists, err := s.userRepo.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique referral code")
}

func titleCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(s)
}

func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

const maxCardNumberLen = 64

// LinkCard attaches a payment card so vending purchases match automatically.
func (s *UserService) LinkCard(ctx context.Context, userID, cardNumber string) (*model.User, error) {
	cardNumber = model.NormalizeCardNumber(cardNumber)
	if cardNumber == "" {
		return nil, newValidationError("card_number", "is required")
	}
	if len(cardNumber) > maxCardNumberLen {
		return nil, newValidationError("card_number", fmt.Sprintf("must be at most %d characters", maxCardNumberLen))
	}
	if owner, err := s.userRepo.GetByCardNumber(ctx, cardNumber); err == nil && owner.ID != userID {
		return nil, ErrCardNumberTaken
	}
	if err := s.userRepo.SetCardNumber(ctx, userID, &cardNumber); err != nil {
		switch {
		case errors.Is(err, repository.ErrCardNumberTaken):
			return nil, ErrCardNumberTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		default:
			return nil, err
		}
	}
	return s.GetUser(ctx, userID)
}

func (s *UserService) UnlinkCard(ctx context.Context, userID string) error {
	err := s.userRepo.SetCardNumber(ctx, userID, nil)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

type UpdateProfileRequest struct {
	FirstName string `json:"first_name" validate:"max=64"`
	LastName  string `json:"last_name" validate:"max=64"`
	Suburb    string `json:"suburb" validate:"max=128"`
}

// UpdateProfile edits identity fields only; loyalty state is out of reach.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*model.User, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	err := s.userRepo.UpdateProfile(ctx, userID, titleCase(req.FirstName), titleCase(req.LastName), titleCase(req.Suburb))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

func (s *UserService) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*model.Transaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ListUsers pages through every account for the admin console.
func (s *UserService) ListUsers(ctx context.Context, page, pageSize int) ([]*model.User, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	return s.userRepo.List(ctx, page, pageSize)
}
