package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.machines.RegisterMachine(ctx, &RegisterMachineRequest{
		ID:       " 042 ",
		Name:     "Depot foyer",
		Location: "12 Station St, Parramatta",
	})
	require.NoError(t, err)
	require.Equal(t, "042", m.ID)
	require.True(t, m.IsOnline)
	require.NotNil(t, m.LastPing)
	require.True(t, f.clock.Now().Equal(*m.LastPing))

	_, err = f.machines.RegisterMachine(ctx, &RegisterMachineRequest{ID: "042", Name: "dup", Location: "x"})
	require.ErrorIs(t, err, ErrMachineExists)

	_, err = f.machines.RegisterMachine(ctx, &RegisterMachineRequest{ID: "043"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "name")
	require.Contains(t, verr.Fields, "location")

	f.registerMachine(t, "001")
	machines, err := f.machines.ListMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 2)
	require.Equal(t, "001", machines[0].ID)
	require.Equal(t, "042", machines[1].ID)
}

func TestUpdateMachineStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.registerMachine(t, "007")

	f.clock.Set(f.clock.Now().Add(5 * time.Minute))
	m, err := f.machines.UpdateMachineStatus(ctx, "007", false)
	require.NoError(t, err)
	require.False(t, m.IsOnline)
	require.True(t, f.clock.Now().Equal(*m.LastPing))

	stats, err := f.reconcile.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.MachinesOnline)

	m, err = f.machines.UpdateMachineStatus(ctx, "007", true)
	require.NoError(t, err)
	require.True(t, m.IsOnline)
	stats, err = f.reconcile.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.MachinesOnline)

	_, err = f.machines.UpdateMachineStatus(ctx, "nope", true)
	require.ErrorIs(t, err, ErrMachineNotFound)
	_, err = f.machines.GetMachine(ctx, "nope")
	require.ErrorIs(t, err, ErrMachineNotFound)
}
