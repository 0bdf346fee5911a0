package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/pkg/utils/crypto"
)

type authDataPayload struct {
	User       string `json:"user"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"private_key,omitempty"`
}

type deviceService struct {
	repo          ports.DeviceRepository
	logger        *logger.Logger
	encryptionKey string
}

type DeviceServiceConfig struct {
	Repository    ports.DeviceRepository
	Logger        *logger.Logger
	EncryptionKey string
}

func NewDeviceService(cfg DeviceServiceConfig) ports.DeviceService {
	return &deviceService{
		repo:          cfg.Repository,
		logger:        cfg.Logger,
		encryptionKey: cfg.EncryptionKey,
	}
}

func (s *deviceService) CreateDevice(ctx context.Context, input ports.CreateDeviceInput) (*domain.Device, error) {
	if input.Host == "" || input.User == "" {
		return nil, ErrDeviceInvalidInput
	}
	if input.Password == "" && input.PrivateKey == "" {
		return nil, ErrDeviceInvalidInput
	}

	if existing, _ := s.repo.GetByHost(ctx, input.Host); existing != nil {
		return nil, ErrDeviceAlreadyExists
	}

	authData, err := s.sealAuth(authDataPayload{
		User:       input.User,
		Password:   input.Password,
		PrivateKey: input.PrivateKey,
	})
	if err != nil {
		return nil, err
	}

	platform := input.Platform
	if platform == "" {
		platform = domain.PlatformGeneric
	}
	sshPort := input.SSHPort
	if sshPort == 0 {
		sshPort = 22
	}

	device := &domain.Device{
		Name:            input.Name,
		Host:            input.Host,
		SSHPort:         sshPort,
		Platform:        platform,
		Status:          domain.DeviceStatusPending,
		AuthData:        authData,
		CredentialGroup: input.CredentialGroup,
		RequiresOTP:     input.RequiresOTP,
		Tags:            input.Tags,
	}

	if err := s.repo.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}

	s.logger.Infow("device_created", "id", device.ID, "host", device.Host, "platform", device.Platform)
	return device, nil
}

func (s *deviceService) GetDevices(ctx context.Context) ([]domain.Device, error) {
	return s.repo.GetAll(ctx)
}

func (s *deviceService) GetDeviceByID(ctx context.Context, id uint) (*domain.Device, error) {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrDeviceNotFound
	}
	return device, nil
}

func (s *deviceService) UpdateDevice(ctx context.Context, id uint, input ports.UpdateDeviceInput) (*domain.Device, error) {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, ErrDeviceNotFound
	}

	if input.Name != nil {
		device.Name = *input.Name
	}
	if input.SSHPort != nil {
		device.SSHPort = *input.SSHPort
	}
	if input.Platform != nil {
		device.Platform = *input.Platform
	}
	if input.RequiresOTP != nil {
		device.RequiresOTP = *input.RequiresOTP
	}
	if input.Tags != nil {
		device.Tags = input.Tags
	}

	if input.User != nil || input.Password != nil || input.PrivateKey != nil {
		auth, err := s.openAuth(device.AuthData)
		if err != nil {
			return nil, err
		}
		if input.User != nil {
			auth.User = *input.User
		}
		if input.Password != nil {
			auth.Password = *input.Password
		}
		if input.PrivateKey != nil {
			auth.PrivateKey = *input.PrivateKey
		}
		sealed, err := s.sealAuth(auth)
		if err != nil {
			return nil, err
		}
		device.AuthData = sealed
	}

	if err := s.repo.Update(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to update device: %w", err)
	}

	s.logger.Infow("device_updated", "id", device.ID, "host", device.Host)
	return device, nil
}

func (s *deviceService) DeleteDevice(ctx context.Context, id uint) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return ErrDeviceNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	s.logger.Infow("device_deleted", "id", id)
	return nil
}

func (s *deviceService) GetDeviceAuth(ctx context.Context, id uint) (string, string, string, error) {
	device, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", "", "", ErrDeviceNotFound
	}
	auth, err := s.openAuth(device.AuthData)
	if err != nil {
		return "", "", "", err
	}
	return auth.User, auth.Password, auth.PrivateKey, nil
}

func (s *deviceService) sealAuth(auth authDataPayload) (string, error) {
	raw, err := json.Marshal(auth)
	if err != nil {
		return "", ErrEncryptionFailed
	}
	sealed, err := crypto.Encrypt(string(raw), s.encryptionKey)
	if err != nil {
		return "", ErrEncryptionFailed
	}
	return sealed, nil
}

func (s *deviceService) openAuth(sealed string) (authDataPayload, error) {
	var auth authDataPayload
	raw, err := crypto.Decrypt(sealed, s.encryptionKey)
	if err != nil {
		return auth, ErrDecryptionFailed
	}
	if err := json.Unmarshal([]byte(raw), &auth); err != nil {
		return auth, ErrDecryptionFailed
	}
	return auth, nil
}
