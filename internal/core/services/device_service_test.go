package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/infrastructure/logger"
)

func newDeviceService(repo ports.DeviceRepository) ports.DeviceService {
	return NewDeviceService(DeviceServiceConfig{
		Repository:    repo,
		Logger:        logger.Nop(),
		EncryptionKey: "test-passphrase",
	})
}

func TestCreateDeviceSealsCredentials(t *testing.T) {
	repo := newFakeDeviceRepo()
	svc := newDeviceService(repo)
	ctx := context.Background()

	device, err := svc.CreateDevice(ctx, ports.CreateDeviceInput{
		Name:     "r1",
		Host:     "r1.example",
		User:     "admin",
		Password: "hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, 22, device.SSHPort)
	assert.Equal(t, domain.PlatformGeneric, device.Platform)

	// Plaintext never lands in the stored record.
	stored, err := repo.GetByID(ctx, device.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.AuthData)
	assert.NotContains(t, stored.AuthData, "hunter2")
	assert.NotContains(t, stored.AuthData, "admin")

	user, password, privateKey, err := svc.GetDeviceAuth(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", user)
	assert.Equal(t, "hunter2", password)
	assert.Empty(t, privateKey)
}

func TestCreateDeviceValidation(t *testing.T) {
	svc := newDeviceService(newFakeDeviceRepo())
	ctx := context.Background()

	_, err := svc.CreateDevice(ctx, ports.CreateDeviceInput{Host: "r1.example"})
	require.ErrorIs(t, err, ErrDeviceInvalidInput)

	_, err = svc.CreateDevice(ctx, ports.CreateDeviceInput{Host: "r1.example", User: "admin"})
	require.ErrorIs(t, err, ErrDeviceInvalidInput)
}

func TestCreateDeviceDuplicateHost(t *testing.T) {
	svc := newDeviceService(newFakeDeviceRepo())
	ctx := context.Background()

	_, err := svc.CreateDevice(ctx, ports.CreateDeviceInput{
		Host: "r1.example", User: "admin", Password: "x",
	})
	require.NoError(t, err)

	_, err = svc.CreateDevice(ctx, ports.CreateDeviceInput{
		Host: "r1.example", User: "other", Password: "y",
	})
	require.ErrorIs(t, err, ErrDeviceAlreadyExists)
}

func TestUpdateDeviceRotatesPassword(t *testing.T) {
	svc := newDeviceService(newFakeDeviceRepo())
	ctx := context.Background()

	device, err := svc.CreateDevice(ctx, ports.CreateDeviceInput{
		Host: "r1.example", User: "admin", Password: "old-secret",
	})
	require.NoError(t, err)

	newPassword := "new-secret"
	_, err = svc.UpdateDevice(ctx, device.ID, ports.UpdateDeviceInput{
		Password: &newPassword,
	})
	require.NoError(t, err)

	user, password, _, err := svc.GetDeviceAuth(ctx, device.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", user, "user survives a password-only update")
	assert.Equal(t, "new-secret", password)
}

func TestGetDeviceAuthWrongKey(t *testing.T) {
	repo := newFakeDeviceRepo()
	ctx := context.Background()

	device, err := newDeviceService(repo).CreateDevice(ctx, ports.CreateDeviceInput{
		Host: "r1.example", User: "admin", Password: "x",
	})
	require.NoError(t, err)

	other := NewDeviceService(DeviceServiceConfig{
		Repository:    repo,
		Logger:        logger.Nop(),
		EncryptionKey: "different-passphrase",
	})
	_, _, _, err = other.GetDeviceAuth(ctx, device.ID)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDeleteDeviceNotFound(t *testing.T) {
	svc := newDeviceService(newFakeDeviceRepo())
	err := svc.DeleteDevice(context.Background(), 42)
	require.ErrorIs(t, err, ErrDeviceNotFound)
}
