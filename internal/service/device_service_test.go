package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muenzbox/internal/device"
	"muenzbox/internal/models"
	"muenzbox/internal/repository"
	"muenzbox/internal/testutil"
)

func TestMaskConfig(t *testing.T) {
	cfg := map[string]string{
		"host":      "192.168.88.1",
		"password":  "hunter2",
		"api_token": "abc",
		"Secret":    "s",
		"user":      "admin",
		"pin":       "",
	}

	assert.Equal(t, map[string]string{
		"host":      "192.168.88.1",
		"password":  MaskedValue,
		"api_token": MaskedValue,
		"Secret":    MaskedValue,
		"user":      "admin",
		"pin":       "",
	}, MaskConfig(cfg))
	assert.Equal(t, "hunter2", cfg["password"], "input is not modified")
}

func TestMergeConfig(t *testing.T) {
	stored := map[string]string{"host": "fritz.box", "password": "old"}

	tests := []struct {
		name   string
		update map[string]string
		want   map[string]string
	}{
		{"masked keeps secret", map[string]string{"host": "10.0.0.1", "password": MaskedValue},
			map[string]string{"host": "10.0.0.1", "password": "old"}},
		{"new secret replaces", map[string]string{"password": "new"},
			map[string]string{"host": "fritz.box", "password": "new"}},
		{"masked unknown secret is dropped", map[string]string{"token": MaskedValue},
			map[string]string{"host": "fritz.box", "password": "old"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeConfig(stored, tt.update))
		})
	}
}

func TestDeviceServiceCRUD(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewDeviceRepository(db)
	s := NewDeviceService(repo, nil, zerolog.Nop())
	ctx := context.Background()

	tv := models.ClassTV
	router := models.ControlMikroTik
	created, err := s.Create(ctx, DeviceInput{
		Name:          ptr("Wohnzimmer"),
		DeviceClass:   &tv,
		ControlMethod: &router,
		Identifier:    ptr("tv-living"),
		Config:        map[string]string{"host": "192.168.88.1", "password": "pw"},
	})
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, MaskedValue, created.Config["password"])

	updated, err := s.Update(ctx, created.ID, DeviceInput{Config: map[string]string{"password": MaskedValue, "user": "api"}})
	require.NoError(t, err)
	assert.Equal(t, MaskedValue, updated.Config["password"])

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pw", stored.Config["password"], "masked round trip keeps the secret")
	assert.Equal(t, "api", stored.Config["user"])

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, MaskedValue, list[0].Config["password"])

	bogus := models.ControlMethod("telnet")
	_, err = s.Update(ctx, created.ID, DeviceInput{ControlMethod: &bogus})
	assert.ErrorIs(t, err, ErrInvalidInput)

	radio := models.DeviceClass("radio")
	_, err = s.Create(ctx, DeviceInput{Name: ptr("Radio"), DeviceClass: &radio})
	assert.ErrorIs(t, err, ErrInvalidDeviceClass)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.ErrorIs(t, s.Delete(ctx, created.ID), ErrDeviceNotFound)
	_, err = s.Update(ctx, created.ID, DeviceInput{})
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestMockStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewDeviceRepository(db)

	live := NewDeviceService(repo, device.New(device.Options{Logger: zerolog.Nop()}), zerolog.Nop())
	assert.Nil(t, live.MockStatus())

	mock := NewDeviceService(repo, device.New(device.Options{UseMock: true, Logger: zerolog.Nop()}), zerolog.Nop())
	status := mock.MockStatus()
	require.NotNil(t, status)
	assert.False(t, status.TVUnlocked)
}
