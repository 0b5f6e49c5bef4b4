package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/security"
	"muenzbox/internal/testutil"
	"muenzbox/internal/timewindow"
)

func ptr[T any](v T) *T {
	return &v
}

func newChildService(t *testing.T) (*ChildService, *fixture) {
	f := newFixture(t)
	s := NewChildService(f.db, zerolog.Nop())
	s.now = f.clock.Now
	return s, f
}

func TestCreateChild(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()

	view, pin, err := s.Create(ctx, ChildInput{
		Name:           ptr("  Lena "),
		TVCoins:        ptr(8),
		TVCoinsWeekly:  ptr(3),
		TVCoinsMax:     ptr(5),
		AllowedPeriods: &[]timewindow.Interval{{From: "14:00", To: "18:00"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Lena", view.Name)
	assert.Len(t, pin, 4)
	assert.NotEmpty(t, view.Avatar)
	assert.Equal(t, 5, view.TVCoins, "clamped to max")
	assert.Equal(t, []timewindow.Interval{{From: "14:00", To: "18:00"}}, view.AllowedPeriods)
	assert.Equal(t, []timewindow.Interval{}, view.WeekendPeriods)

	stored, err := repository.NewChildRepository(f.db).GetByID(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, security.CheckPIN(stored.PINHash, pin))

	entries, err := f.ledger.ListCoinLog(ctx, models.LogFilter{ChildID: view.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Delta)
	assert.Equal(t, models.ReasonAdminAdjust, entries[0].Reason)
}

func TestCreateChildValidation(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    ChildInput
		field string
	}{
		{"missing name", ChildInput{}, "name"},
		{"blank name", ChildInput{Name: ptr("   ")}, "name"},
		{"short pin", ChildInput{Name: ptr("Lena"), PIN: ptr("12")}, "pin"},
		{"weekly too high", ChildInput{Name: ptr("Lena"), SwitchCoinsWeekly: ptr(101)}, "switch_weekly"},
		{"negative coins", ChildInput{Name: ptr("Lena"), TVCoins: ptr(-1)}, "tv_coins"},
		{"bad interval", ChildInput{Name: ptr("Lena"), WeekendPeriods: &[]timewindow.Interval{{From: "18:00", To: "09:00"}}}, "weekend_periods"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.Create(ctx, tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, tt.field, AsError(err).Field)
		})
	}
	assert.Equal(t, 0, testutil.CountRows(t, f.db, "children"))
}

func TestUpdateChild(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()
	child := testutil.InsertChild(t, f.db, testutil.ChildFixture{
		SwitchCoins: 6, SwitchCoinsWeekly: 2, SwitchCoinsMax: 8, TVCoins: 1, TVCoinsMax: 4,
	})

	view, err := s.Update(ctx, child.ID, ChildInput{SwitchCoinsMax: ptr(4), TVCoins: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, 4, view.SwitchCoins, "lowering the cap clamps the balance")
	assert.Equal(t, 4, view.SwitchCoinsMax)
	assert.Equal(t, 3, view.TVCoins)
	assert.Equal(t, "Mia", view.Name, "nil fields stay unchanged")

	entries, err := f.ledger.ListCoinLog(ctx, models.LogFilter{ChildID: child.ID})
	require.NoError(t, err)
	deltas := map[models.DeviceClass]int{}
	for _, e := range entries {
		deltas[e.CoinType] = e.Delta
	}
	assert.Equal(t, map[models.DeviceClass]int{models.ClassSwitch: -2, models.ClassTV: 2}, deltas)

	_, err = s.Update(ctx, 999, ChildInput{Name: ptr("Ghost")})
	assert.ErrorIs(t, err, ErrChildNotFound)
}

func TestUpdateChildPIN(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()
	child := testutil.InsertChild(t, f.db, testutil.ChildFixture{})

	_, err := s.Update(ctx, child.ID, ChildInput{PIN: ptr("2468")})
	require.NoError(t, err)

	stored, err := repository.NewChildRepository(f.db).GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, security.CheckPIN(stored.PINHash, "2468"))
}

func TestDeleteChildCascades(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()
	child := testutil.InsertChild(t, f.db, testutil.ChildFixture{TVCoins: 3, TVCoinsMax: 3})
	other := testutil.InsertChild(t, f.db, testutil.ChildFixture{Name: "Ben", TVCoins: 3, TVCoinsMax: 3})

	for _, c := range []*models.Child{child, other} {
		_, err := f.sessions.Start(ctx, childPrincipal(c), c.ID, models.ClassTV, 1)
		require.NoError(t, err)
	}
	_, err := f.ledger.AdjustPocketMoney(ctx, child.ID, 200, "Oma")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, child.ID))
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "children"))
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "sessions"))
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "coin_log"))
	assert.Equal(t, 0, testutil.CountRows(t, f.db, "pocket_money_log"))

	assert.ErrorIs(t, s.Delete(ctx, child.ID), ErrChildNotFound)
}

func TestRegeneratePIN(t *testing.T) {
	s, f := newChildService(t)
	ctx := context.Background()
	child := testutil.InsertChild(t, f.db, testutil.ChildFixture{})

	pin, err := s.RegeneratePIN(ctx, child.ID)
	require.NoError(t, err)

	stored, err := repository.NewChildRepository(f.db).GetByID(ctx, child.ID)
	require.NoError(t, err)
	assert.True(t, security.CheckPIN(stored.PINHash, pin))

	_, err = s.RegeneratePIN(ctx, 999)
	assert.ErrorIs(t, err, ErrChildNotFound)
}

func TestListPublicHidesBalances(t *testing.T) {
	s, f := newChildService(t)
	testutil.InsertChild(t, f.db, testutil.ChildFixture{Name: "Ben"})
	testutil.InsertChild(t, f.db, testutil.ChildFixture{Name: "Anna"})

	summaries, err := s.ListPublic(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "Anna", summaries[0].Name)
	assert.Equal(t, "Ben", summaries[1].Name)
}
