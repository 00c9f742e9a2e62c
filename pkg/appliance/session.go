package appliance

import (
	"fmt"
	"strings"
	"time"
)

// Stage is how far the bring-up of an appliance has progressed. Stages only move forward,
// except that re-running InitializeAuthentication starts over.
type Stage int

const (
	StageUnregistered Stage = iota
	StageAuthInitialized
	StageEncryptionConfigured
	StageUnlocked
	StageUploadValidated
	StageFinalized
)

var stageNames = map[Stage]string{
	StageUnregistered:         "UNREGISTERED",
	StageAuthInitialized:      "AUTH_INITIALIZED",
	StageEncryptionConfigured: "ENCRYPTION_CONFIGURED",
	StageUnlocked:             "UNLOCKED",
	StageUploadValidated:      "UPLOAD_VALIDATED",
	StageFinalized:            "FINALIZED",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) MarshalText() ([]byte, error) {
	if _, ok := stageNames[s]; !ok {
		return nil, fmt.Errorf("unknown stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for stage, name := range stageNames {
		if strings.EqualFold(name, string(text)) {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(text))
}

// raise returns the later of s and to.
func (s Stage) raise(to Stage) Stage {
	return max(s, to)
}

type LockState string

const (
	LockStateLocked   LockState = "locked"
	LockStateUnlocked LockState = "unlocked"
)

// Session is the locally persisted registration of one appliance.
type Session struct {
	Profile         string    `yaml:"profile" json:"profile"`
	Endpoint        string    `yaml:"endpoint" json:"endpoint"`
	CertFingerprint string    `yaml:"cert-fingerprint" json:"certFingerprint"`
	SerialID        string    `yaml:"serial-id" json:"serialId"`
	JobID           string    `yaml:"job-id,omitempty" json:"jobId,omitempty"`
	ApplianceLabel  string    `yaml:"appliance-label,omitempty" json:"applianceLabel,omitempty"`
	AuthToken       string    `yaml:"auth-token" json:"-"`
	LockState       LockState `yaml:"lock-state" json:"lockState"`
	Stage           Stage     `yaml:"stage" json:"stage"`
	UpdatedAt       time.Time `yaml:"updated-at" json:"updatedAt"`
}
