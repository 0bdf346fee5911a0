package services

import (
	"errors"
	"fmt"
	"strings"
)

// Device errors
var (
	ErrDeviceNotFound      = errors.New("device: not found")
	ErrDeviceAlreadyExists = errors.New("device: host already exists")
	ErrDeviceInvalidInput  = errors.New("device: invalid input")
)

// Batch errors
var (
	ErrBatchNotFound     = errors.New("batch: not found")
	ErrBatchInvalidInput = errors.New("batch: invalid input")
	ErrBatchNotResumable = errors.New("batch: not in a resumable state")
	ErrBatchNotRunning   = errors.New("batch: not running")
	ErrBatchQueueFull    = errors.New("batch: dispatch queue full")
)

// Encryption errors
var (
	ErrEncryptionFailed = errors.New("encryption: failed to encrypt data")
	ErrDecryptionFailed = errors.New("encryption: failed to decrypt data")
)

// OTPRequiredError aborts a batch before any session is opened when one or
// more target devices need an interactively supplied one-time code that is
// not cached.
type OTPRequiredError struct {
	Devices []BlockedDevice
}

type BlockedDevice struct {
	DeviceID        uint   `json:"device_id"`
	Host            string `json:"host"`
	CredentialGroup string `json:"credential_group"`
}

func (e *OTPRequiredError) Error() string {
	hosts := make([]string, len(e.Devices))
	for i, d := range e.Devices {
		hosts[i] = d.Host
	}
	return fmt.Sprintf("otp-required: no cached one-time code for devices: %s", strings.Join(hosts, ", "))
}
