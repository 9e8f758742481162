package service

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidPoints        = errors.New("points must not be negative")
	ErrAlreadyProcessed     = errors.New("external transaction already processed")
	ErrExternalNotFound     = errors.New("external transaction not found")
	ErrRewardNotFound       = errors.New("reward not found or inactive")
	ErrInsufficientPoints   = errors.New("insufficient points")
	ErrCodeNotFound         = errors.New("redemption code not found")
	ErrAlreadyClaimed       = errors.New("redemption code already claimed")
	ErrInvalidQRCode        = errors.New("invalid machine QR code")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidReferralCode  = errors.New("invalid referral code")
	ErrOwnReferralCode      = errors.New("cannot use your own referral code")
	ErrReferralAlreadyUsed  = errors.New("referral code already used")
	ErrEmailTaken           = errors.New("email already registered")
	ErrCardNumberTaken      = errors.New("card number already linked to another account")
	ErrSeasonNotFound       = errors.New("season not found")
	ErrBusy                 = errors.New("user is busy, retry later")
	ErrMachineNotFound      = errors.New("machine not registered")
	ErrMachineExists        = errors.New("machine already registered")
	ErrNotificationNotFound = errors.New("notification not found")
)

// ValidationError rejects malformed input before it reaches the ledger.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newValidationError(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// validateStruct runs struct-tag validation and folds the result into a
// ValidationError keyed by the json field name.
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "email":
		return "must be a valid email"
	default:
		return "failed " + fe.Tag()
	}
}
