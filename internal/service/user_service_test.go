package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"hivisloyalty/internal/model"

	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.CreateUser(ctx, &CreateUserRequest{
		Email:     "  Jo.Smith@Example.com ",
		FirstName: "jo",
		LastName:  "smith",
		Suburb:    "north  parramatta",
	})
	require.NoError(t, err)
	require.Equal(t, "jo.smith@example.com", u.Email)
	require.Equal(t, "Jo", u.FirstName)
	require.Equal(t, "Smith", u.LastName)
	require.Equal(t, "North Parramatta", u.Suburb)
	require.Equal(t, model.TierApprentice, u.LoyaltyTier)
	require.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), u.ReferralCode)
	require.Len(t, u.ID, 36)

	_, err = f.users.CreateUser(ctx, &CreateUserRequest{Email: "jo.smith@example.com"})
	require.ErrorIs(t, err, ErrEmailTaken)

	_, err = f.users.CreateUser(ctx, &CreateUserRequest{Email: "not-an-email"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "email")
}

func TestLinkCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createUser(t, "card-a@example.com", "")
	b := f.createUser(t, "card-b@example.com", "")

	got, err := f.users.LinkCard(ctx, a.ID, "4111 1111")
	require.NoError(t, err)
	require.Equal(t, "41111111", *got.CardNumber)

	_, err = f.users.LinkCard(ctx, a.ID, "41111111")
	require.NoError(t, err)
	_, err = f.users.LinkCard(ctx, b.ID, "41111111")
	require.ErrorIs(t, err, ErrCardNumberTaken)
	_, err = f.users.LinkCard(ctx, "ghost", "5555")
	require.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, f.users.UnlinkCard(ctx, a.ID))
	_, err = f.users.LinkCard(ctx, b.ID, "41111111")
	require.NoError(t, err)
}

func TestLinkCardRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "card-bad@example.com", "")

	_, err := f.users.LinkCard(ctx, u.ID, "   ")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "is required", verr.Fields["card_number"])

	_, err = f.users.LinkCard(ctx, u.ID, strings.Repeat("4", 65))
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields["card_number"], "at most 64")

	got, err := f.users.LinkCard(ctx, u.ID, strings.Repeat("4", 64))
	require.NoError(t, err)
	require.Len(t, *got.CardNumber, 64)
}

func TestUpdateProfileLeavesPointsAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUser(t, "profile@example.com", "Ryde")
	f.purchase(t, u.ID, 20)

	got, err := f.users.UpdateProfile(ctx, u.ID, &UpdateProfileRequest{
		FirstName: "sam", LastName: "lee", Suburb: "penrith",
	})
	require.NoError(t, err)
	require.Equal(t, "Sam Lee", got.DisplayName())
	require.Equal(t, "Penrith", got.Suburb)
	require.Equal(t, int64(20), got.TotalPoints)

	list, total, err := f.users.ListTransactions(ctx, u.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, list, 1)
}

func TestListUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, email := range []string{"list-a@example.com", "list-b@example.com", "list-c@example.com"} {
		f.createUser(t, email, "")
	}

	users, total, err := f.users.ListUsers(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, users, 2)

	rest, _, err := f.users.ListUsers(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.NotContains(t, []string{users[0].ID, users[1].ID}, rest[0].ID)
}
