package dto

import (
	"time"

	"github.com/netfleet/backend/internal/domain"
)

type CreateDeviceRequest struct {
	Name            string       `json:"name"`
	Host            string       `json:"host"`
	SSHPort         int          `json:"ssh_port"`
	Platform        string       `json:"platform"`
	Username        string       `json:"username"`
	Password        string       `json:"password,omitempty"`
	PrivateKey      string       `json:"private_key,omitempty"`
	CredentialGroup string       `json:"credential_group,omitempty"`
	RequiresOTP     bool         `json:"requires_otp"`
	Tags            domain.JSONB `json:"tags,omitempty"`
}

func (r *CreateDeviceRequest) Validate() []string {
	var errors []string

	if r.Name == "" {
		errors = append(errors, "name is required")
	}
	if r.Host == "" {
		errors = append(errors, "host is required")
	}
	if r.Username == "" {
		errors = append(errors, "username is required")
	}
	if r.Password == "" && r.PrivateKey == "" {
		errors = append(errors, "either password or private_key is required")
	}
	if r.Platform != "" && r.GetPlatform() == "" {
		errors = append(errors, "platform must be one of: cisco-ios, junos, generic")
	}
	if r.RequiresOTP && r.CredentialGroup == "" {
		errors = append(errors, "credential_group is required when requires_otp is set")
	}

	return errors
}

func (r *CreateDeviceRequest) GetSSHPort() int {
	if r.SSHPort == 0 {
		return 22
	}
	return r.SSHPort
}

func (r *CreateDeviceRequest) GetPlatform() domain.Platform {
	switch r.Platform {
	case "cisco-ios":
		return domain.PlatformCiscoIOS
	case "junos":
		return domain.PlatformJunos
	case "generic", "":
		return domain.PlatformGeneric
	}
	return ""
}

type UpdateDeviceRequest struct {
	Name        *string      `json:"name,omitempty"`
	SSHPort     *int         `json:"ssh_port,omitempty"`
	Platform    *string      `json:"platform,omitempty"`
	Username    *string      `json:"username,omitempty"`
	Password    *string      `json:"password,omitempty"`
	PrivateKey  *string      `json:"private_key,omitempty"`
	RequiresOTP *bool        `json:"requires_otp,omitempty"`
	Tags        domain.JSONB `json:"tags,omitempty"`
}

type DeviceResponse struct {
	ID              uint                `json:"id"`
	Name            string              `json:"name"`
	Host            string              `json:"host"`
	SSHPort         int                 `json:"ssh_port"`
	Platform        domain.Platform     `json:"platform"`
	Status          domain.DeviceStatus `json:"status"`
	CredentialGroup string              `json:"credential_group,omitempty"`
	RequiresOTP     bool                `json:"requires_otp"`
	Tags            domain.JSONB        `json:"tags,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func ToDeviceResponse(d *domain.Device) DeviceResponse {
	return DeviceResponse{
		ID:              d.ID,
		Name:            d.Name,
		Host:            d.Host,
		SSHPort:         d.SSHPort,
		Platform:        d.Platform,
		Status:          d.Status,
		CredentialGroup: d.CredentialGroup,
		RequiresOTP:     d.RequiresOTP,
		Tags:            d.Tags,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}
