package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ==================== ENUMS ====================

type Operation string

const (
	OperationCollect       Operation = "collect"
	OperationBackup        Operation = "backup"
	OperationDeploy        Operation = "deploy"
	OperationTopologyProbe Operation = "topology-probe"
)

func (o Operation) Valid() bool {
	switch o {
	case OperationCollect, OperationBackup, OperationDeploy, OperationTopologyProbe:
		return true
	}
	return false
}

type DeviceStatus string

const (
	DeviceStatusPending     DeviceStatus = "pending"
	DeviceStatusReachable   DeviceStatus = "reachable"
	DeviceStatusUnreachable DeviceStatus = "unreachable"
	DeviceStatusError       DeviceStatus = "error"
)

type Platform string

const (
	PlatformCiscoIOS Platform = "cisco-ios"
	PlatformJunos    Platform = "junos"
	PlatformGeneric  Platform = "generic"
)

type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

type EventStatus string

const (
	EventStatusPending EventStatus = "pending"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
)

// Batch timeline event types
const (
	EventTypeBatchSubmitted = "BATCH_SUBMITTED"
	EventTypeBatchStarted   = "BATCH_STARTED"
	EventTypeBatchCompleted = "BATCH_COMPLETED"
	EventTypeBatchFailed    = "BATCH_FAILED"
	EventTypeBatchResumed   = "BATCH_RESUMED"
)

// ==================== JSONB TYPES ====================

type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan JSONB: invalid type")
	}
	return json.Unmarshal(bytes, j)
}

// IDList stores a device ID set as a jsonb array.
type IDList []uint

func (l IDList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

func (l *IDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan IDList: invalid type")
	}
	return json.Unmarshal(bytes, l)
}

func (l IDList) Contains(id uint) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// ==================== ENTITIES ====================

type Device struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Name     string       `gorm:"size:255;not null" json:"name"`
	Host     string       `gorm:"size:255;uniqueIndex;not null" json:"host"`
	SSHPort  int          `gorm:"default:22" json:"ssh_port"`
	Platform Platform     `gorm:"size:32;not null;default:'generic'" json:"platform"`
	Status   DeviceStatus `gorm:"size:20;not null;default:'pending'" json:"status"`

	// AuthData holds the AES-GCM encrypted credential payload (user,
	// password, private key). Never serialized.
	AuthData string `gorm:"type:text" json:"-"`

	// CredentialGroup keys the OTP cache for devices whose credentials
	// require an interactively supplied one-time code.
	CredentialGroup string `gorm:"size:128;index" json:"credential_group,omitempty"`
	RequiresOTP     bool   `gorm:"default:false" json:"requires_otp"`

	Tags    JSONB  `gorm:"type:jsonb" json:"tags,omitempty"`
	LastLog string `gorm:"type:text" json:"last_log,omitempty"`
}

// BatchJob is one operator-submitted batch. Immutable once it reaches a
// terminal status; a resumed run is a new BatchJob referencing this one.
type BatchJob struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	BatchID   string      `gorm:"size:64;uniqueIndex;not null" json:"batch_id"`
	Operation Operation   `gorm:"size:32;not null" json:"operation"`
	Status    BatchStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Payload   JSONB       `gorm:"type:jsonb" json:"payload,omitempty"`

	DeviceIDs     IDList `gorm:"type:jsonb" json:"device_ids"`
	SkipDeviceIDs IDList `gorm:"type:jsonb" json:"skip_device_ids,omitempty"`
	ResumeOf      string `gorm:"size:64;index" json:"resume_of,omitempty"`

	TotalDevices int    `json:"total_devices"`
	SuccessCount int    `json:"success_count"`
	FailureCount int    `json:"failure_count"`
	Error        string `gorm:"type:text" json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMs int64      `json:"duration_ms"`
}

// DeviceResult is the persisted terminal outcome of one device within a
// batch. Exactly one row exists per non-skipped device of a finished batch.
type DeviceResult struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	CreatedAt time.Time `json:"created_at"`

	BatchID  string `gorm:"size:64;not null;index" json:"batch_id"`
	DeviceID uint   `gorm:"not null;index" json:"device_id"`
	Host     string `gorm:"size:255" json:"host"`

	Success      bool   `json:"success"`
	Data         JSONB  `gorm:"type:jsonb" json:"data,omitempty"`
	ErrorKind    string `gorm:"size:32" json:"error_kind,omitempty"`
	ErrorStage   string `gorm:"size:16" json:"error_stage,omitempty"`
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	ErrorDetail  string `gorm:"type:text" json:"error_detail,omitempty"`

	Attempts  int   `json:"attempts"`
	ElapsedMs int64 `json:"elapsed_ms"`
}

// Backup is one captured device configuration.
type Backup struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	DeviceID uint    `gorm:"not null;index" json:"device_id"`
	Device   *Device `gorm:"constraint:OnDelete:CASCADE" json:"device,omitempty"`
	BatchID  string  `gorm:"size:64;index" json:"batch_id,omitempty"`

	Content  string `gorm:"type:text" json:"-"`
	Checksum string `gorm:"size:64;index" json:"checksum"`
	Size     int    `json:"size"`
}

type TimelineEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	Type         string      `gorm:"size:100;not null;index" json:"type"`
	Status       EventStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Message      string      `gorm:"type:text" json:"message"`
	Meta         JSONB       `gorm:"type:jsonb" json:"meta"`
	ResourceID   *uint       `gorm:"index" json:"resource_id,omitempty"`
	ResourceType string      `gorm:"size:100;index" json:"resource_type"`
}
