package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/testutil"
)

func TestBackupRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.InsertDevice(t, f.db, models.ClassTV, models.ControlMikroTik, "tv-living")
	child := testutil.InsertChild(t, f.db, testutil.ChildFixture{TVCoins: 4, TVCoinsMax: 6, PocketMoneyWeekly: 250})

	session, err := f.sessions.Start(ctx, childPrincipal(child), child.ID, models.ClassTV, 2)
	require.NoError(t, err)
	_, err = f.ledger.AdjustPocketMoney(ctx, child.ID, 100, "Geburtstag")
	require.NoError(t, err)
	require.NoError(t, repository.NewSettingsRepository(f.db).Set(ctx, repository.LastWeeklyRefillKey, "2025-03-01"))

	var buf bytes.Buffer
	exported, err := NewBackupService(f.db, zerolog.Nop()).Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, BackupVersion, exported.Version)
	assert.Len(t, exported.Children, 1)
	assert.Len(t, exported.Sessions, 1)
	assert.Len(t, exported.CoinLog, 1)
	assert.Len(t, exported.PocketMoneyLog, 1)

	target := testutil.NewTestDB(t)
	imported, err := NewBackupService(target, zerolog.Nop()).Import(ctx, &buf, false)
	require.NoError(t, err)
	assert.Len(t, imported.Devices, 1)

	restored, err := repository.NewChildRepository(target).GetByID(ctx, child.ID)
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, 2, restored.TVCoins)
	assert.Equal(t, int64(100), restored.PocketMoneyCents)
	assert.Equal(t, child.PINHash, restored.PINHash)

	restoredSession, err := repository.NewSessionRepository(target).GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, restoredSession)
	assert.True(t, restoredSession.EndsAt.Equal(session.EndsAt))
	assert.Equal(t, models.StatusActive, restoredSession.Status)

	last, err := repository.NewSettingsRepository(target).Get(ctx, repository.LastWeeklyRefillKey)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", last)

	dev, err := repository.NewDeviceRepository(target).ActiveByClass(ctx, models.ClassTV)
	require.NoError(t, err)
	require.NotNil(t, dev)
	assert.Equal(t, "tv-living", dev.Identifier)
}

func TestBackupImportWipe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	testutil.InsertChild(t, f.db, testutil.ChildFixture{Name: "Mia"})

	var buf bytes.Buffer
	_, err := NewBackupService(f.db, zerolog.Nop()).Export(ctx, &buf)
	require.NoError(t, err)
	data := buf.String()

	s := NewBackupService(f.db, zerolog.Nop())
	_, err = s.Import(ctx, strings.NewReader(data), false)
	assert.Error(t, err, "duplicate ids without wipe")
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "children"), "failed import rolls back")

	_, err = s.Import(ctx, strings.NewReader(data), true)
	require.NoError(t, err)
	assert.Equal(t, 1, testutil.CountRows(t, f.db, "children"))
}

func TestBackupImportRejectsVersion(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, err := NewBackupService(db, zerolog.Nop()).Import(context.Background(), strings.NewReader(`{"version":"99"}`), true)
	assert.ErrorContains(t, err, "unsupported backup version")
}
