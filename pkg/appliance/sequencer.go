// Package appliance drives a physical transfer appliance through its bring-up:
// InitializeAuthentication, ConfigureEncryption, Unlock and Finalize.
//
// Every step talks to the control plane and to the appliance itself and records its
// progress in a SessionStore, so a failed step can be retried without starting over.
package appliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudctl/cloudctl/pkg/audit"
	"github.com/cloudctl/cloudctl/pkg/controlplane"
	"github.com/cloudctl/cloudctl/pkg/core"
	"github.com/cloudctl/cloudctl/pkg/device"
	"github.com/cloudctl/cloudctl/pkg/observability"
	"github.com/cloudctl/cloudctl/pkg/prompt"
)

const (
	stepInitAuth            = "init_auth"
	stepConfigureEncryption = "configure_encryption"
	stepUnlock              = "unlock"
	stepFinalize            = "finalize"
	stepUnregister          = "unregister"
)

var ErrNotUnlocked = errors.New("appliance must be unlocked before it can be finalized")

// ControlPlane is the part of the provider API the bring-up needs.
type ControlPlane interface {
	GetTransferAppliance(ctx context.Context, jobID, label string) (*controlplane.TransferAppliance, error)
	UpdateTransferApplianceState(ctx context.Context, jobID, label, state string) error
	GetEncryptionPassphrase(ctx context.Context, jobID, label string) (string, error)
	GetTransferJob(ctx context.Context, jobID string) (*controlplane.TransferJob, error)
}

// DeviceClient talks to the management API of one appliance.
type DeviceClient interface {
	InitAuth(ctx context.Context, serialID, accessToken string) (string, error)
	ConfigureEncryption(ctx context.Context, passphrase string) error
	Unlock(ctx context.Context, passphrase string) error
	SetUploadConfig(ctx context.Context, cfg device.UploadConfig) error
	Finalize(ctx context.Context) error
	GetStatus(ctx context.Context) (*device.Status, error)
}

// DeviceFactory connects to the appliance at endpoint. authToken is empty before the
// authentication handshake.
type DeviceFactory func(endpoint, certFingerprint, authToken string) (DeviceClient, error)

type SecretPrompt interface {
	PromptHidden(label string) (string, error)
}

// UploadUser is the identity the appliance uploads data as once it is back in the data center.
type UploadUser struct {
	Config        string
	PrivateKeyPEM string
}

// Credentials resolves the admin and upload identities used by Finalize.
type Credentials interface {
	ObjectStores(ctx context.Context) (admin, upload Identity, err error)
	UploadUser() (*UploadUser, error)
}

type InitAuthRequest struct {
	Profile         string
	JobID           string
	ApplianceLabel  string
	CertFingerprint string
	ApplianceIP     string
	AppliancePort   int
	AccessToken     string
}

type UnlockRequest struct {
	Profile        string
	JobID          string
	ApplianceLabel string
}

type FinalizeRequest struct {
	Profile         string
	JobID           string
	ApplianceLabel  string
	SkipUploadCheck bool
}

// Result is what every step reports back: the updated session and the appliance status.
type Result struct {
	Session *Session       `json:"session" yaml:"session"`
	Status  *device.Status `json:"status,omitempty" yaml:"status,omitempty"`
}

type FinalizeResult struct {
	Result `yaml:",inline"`
	// RelockRequired is always true: a finalized appliance is locked and reports its
	// finalize status as unavailable until it is unlocked again.
	RelockRequired bool `json:"relockRequired" yaml:"relock-required"`
}

type Sequencer struct {
	controlPlane ControlPlane
	devices      DeviceFactory
	prompt       SecretPrompt
	store        SessionStore
	credentials  Credentials
	audit        audit.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*Sequencer)

func WithCredentials(c Credentials) Option {
	return func(s *Sequencer) {
		s.credentials = c
	}
}

func WithAuditLogger(l audit.Logger) Option {
	return func(s *Sequencer) {
		s.audit = l
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Sequencer) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

func WithNow(now func() time.Time) Option {
	return func(s *Sequencer) {
		s.now = now
	}
}

func NewSequencer(cp ControlPlane, devices DeviceFactory, p SecretPrompt, store SessionStore, options ...Option) *Sequencer {
	s := &Sequencer{
		controlPlane: cp,
		devices:      devices,
		prompt:       p,
		store:        store,
		audit:        &audit.NoOpAuditLogger{},
		now:          time.Now,
		logger:       slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

func requireParam(op, flag, value string) error {
	if strings.TrimSpace(value) == "" {
		return core.Validation(op, "parameter --%s cannot be whitespace or empty string", flag)
	}
	return nil
}

func profileOrDefault(profile string) string {
	if strings.TrimSpace(profile) == "" {
		return "DEFAULT"
	}
	return profile
}

// observe reports a finished step to the audit log and metrics.
func (s *Sequencer) observe(ctx context.Context, step, event, profile, resource string, begin time.Time, err error) {
	s.metrics.ObserveStep(step, err)
	audit.LogApplianceStep(ctx, s.audit, event, profile, resource, time.Since(begin), err)
}

func (s *Sequencer) persist(session *Session) error {
	session.UpdatedAt = s.now().UTC()
	return s.store.Put(session)
}

func (s *Sequencer) connect(session *Session) (DeviceClient, error) {
	return s.devices(session.Endpoint, session.CertFingerprint, session.AuthToken)
}

// Session returns the stored session of profile.
func (s *Sequencer) Session(profile string) (*Session, error) {
	return s.store.Get(profileOrDefault(profile))
}

// InitializeAuthentication registers the appliance reachable at req.ApplianceIP under
// req.Profile. Re-running it for a registered profile starts the bring-up over.
func (s *Sequencer) InitializeAuthentication(ctx context.Context, req InitAuthRequest) (res *Result, err error) {
	const op = "InitializeAuthentication"
	profile := profileOrDefault(req.Profile)
	endpoint := ""

	for _, p := range []struct{ flag, value string }{
		{"job-id", req.JobID},
		{"appliance-label", req.ApplianceLabel},
		{"appliance-cert-fingerprint", req.CertFingerprint},
		{"appliance-ip", req.ApplianceIP},
	} {
		if err := requireParam(op, p.flag, p.value); err != nil {
			return nil, err
		}
	}
	if req.AppliancePort == 0 {
		req.AppliancePort = device.DefaultPort
	}
	if req.AppliancePort < 1 || req.AppliancePort > 65535 {
		return nil, core.Validation(op, "parameter --appliance-port must be between 1 and 65535, got %d", req.AppliancePort)
	}
	if _, err := device.NormalizeFingerprint(req.CertFingerprint); err != nil {
		return nil, core.Validation(op, "parameter --appliance-cert-fingerprint: %v", err)
	}

	defer func(begin time.Time) {
		s.observe(ctx, stepInitAuth, audit.EventApplianceInitAuth, profile, endpoint, begin, err)
	}(time.Now())

	s.logger.Info("retrieving the appliance serial id from the control plane")
	ta, err := s.controlPlane.GetTransferAppliance(ctx, req.JobID, req.ApplianceLabel)
	if err != nil {
		return nil, err
	}
	if ta.SerialNumber == "" {
		return nil, core.Other(op, fmt.Errorf("appliance %s has no serial number assigned", req.ApplianceLabel))
	}

	accessToken := req.AccessToken
	if accessToken == "" {
		accessToken, err = s.prompt.PromptHidden("Access token")
		if errors.Is(err, prompt.ErrNoInput) {
			return nil, core.Validation(op, "no access token provided")
		} else if err != nil {
			return nil, err
		}
	}

	endpoint = device.Endpoint(req.ApplianceIP, req.AppliancePort)
	dev, err := s.devices(endpoint, req.CertFingerprint, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("initializing authentication with the appliance", slog.String("endpoint", endpoint))
	token, err := dev.InitAuth(ctx, ta.SerialNumber, accessToken)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Profile:         profile,
		Endpoint:        endpoint,
		CertFingerprint: req.CertFingerprint,
		SerialID:        ta.SerialNumber,
		JobID:           req.JobID,
		ApplianceLabel:  req.ApplianceLabel,
		AuthToken:       token,
		LockState:       LockStateLocked,
		Stage:           StageAuthInitialized,
	}
	if err := s.persist(session); err != nil {
		return nil, err
	}

	dev, err = s.connect(session)
	if err != nil {
		return &Result{Session: session}, err
	}
	status, err := dev.GetStatus(ctx)
	if err != nil {
		return &Result{Session: session}, err
	}
	return &Result{Session: session, Status: status}, nil
}

// ConfigureEncryption moves the appliance to PREPARING when needed and hands it the
// encryption passphrase held by the control plane.
func (s *Sequencer) ConfigureEncryption(ctx context.Context, profile, jobID, label string) (res *Result, err error) {
	const op = "ConfigureEncryption"
	profile = profileOrDefault(profile)

	if err := requireParam(op, "job-id", jobID); err != nil {
		return nil, err
	}
	if err := requireParam(op, "appliance-label", label); err != nil {
		return nil, err
	}

	session, err := s.store.Get(profile)
	if err != nil {
		return nil, err
	}
	if session.Stage < StageAuthInitialized {
		return nil, core.Validation(op, "appliance %s is not registered, run initialize-authentication first", profile)
	}

	defer func(begin time.Time) {
		s.observe(ctx, stepConfigureEncryption, audit.EventApplianceConfigureEncryption, profile, session.Endpoint, begin, err)
	}(time.Now())

	ta, err := s.controlPlane.GetTransferAppliance(ctx, jobID, label)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(ta.LifecycleState, controlplane.LifecycleStatePreparing) {
		s.logger.Info("moving the state of the appliance to preparing", slog.String("from", ta.LifecycleState))
		if err := s.controlPlane.UpdateTransferApplianceState(ctx, jobID, label, controlplane.LifecycleStatePreparing); err != nil {
			return nil, err
		}
	}

	s.logger.Info("retrieving the encryption passphrase")
	passphrase, err := s.controlPlane.GetEncryptionPassphrase(ctx, jobID, label)
	if err != nil {
		return nil, err
	}

	dev, err := s.connect(session)
	if err != nil {
		return nil, err
	}
	s.logger.Info("configuring encryption")
	if err := dev.ConfigureEncryption(ctx, passphrase); err != nil {
		return nil, err
	}

	session.Stage = session.Stage.raise(StageEncryptionConfigured)
	session.LockState = LockStateUnlocked
	if err := s.persist(session); err != nil {
		return nil, err
	}

	status, err := dev.GetStatus(ctx)
	if err != nil {
		return &Result{Session: session}, err
	}
	return &Result{Session: session, Status: status}, nil
}

// Unlock unlocks the appliance. The passphrase comes from the control plane when both the
// job id and the appliance label are known and is asked for otherwise.
func (s *Sequencer) Unlock(ctx context.Context, req UnlockRequest) (res *Result, err error) {
	const op = "Unlock"
	profile := profileOrDefault(req.Profile)

	session, err := s.store.Get(profile)
	if err != nil {
		return nil, err
	}

	defer func(begin time.Time) {
		s.observe(ctx, stepUnlock, audit.EventApplianceUnlock, profile, session.Endpoint, begin, err)
	}(time.Now())

	var passphrase string
	if strings.TrimSpace(req.JobID) != "" && strings.TrimSpace(req.ApplianceLabel) != "" {
		s.logger.Info("retrieving the passphrase from the control plane")
		passphrase, err = s.controlPlane.GetEncryptionPassphrase(ctx, req.JobID, req.ApplianceLabel)
		if err != nil {
			return nil, err
		}
	} else {
		s.logger.Info("specify --job-id and --appliance-label to retrieve the passphrase from the control plane, or enter it")
		passphrase, err = s.prompt.PromptHidden("Passphrase")
		if errors.Is(err, prompt.ErrNoInput) {
			return nil, core.Validation(op, "no passphrase provided")
		} else if err != nil {
			return nil, err
		}
	}

	dev, err := s.connect(session)
	if err != nil {
		return nil, err
	}
	if err := dev.Unlock(ctx, passphrase); err != nil {
		return nil, err
	}

	session.Stage = session.Stage.raise(StageUnlocked)
	session.LockState = LockStateUnlocked
	if err := s.persist(session); err != nil {
		return nil, err
	}

	status, err := dev.GetStatus(ctx)
	if err != nil {
		return &Result{Session: session}, err
	}
	return &Result{Session: session, Status: status}, nil
}

// Finalize validates the upload user, stores its configuration on the appliance and
// finalizes it. The appliance has to be unlocked.
func (s *Sequencer) Finalize(ctx context.Context, req FinalizeRequest) (res *FinalizeResult, err error) {
	const op = "Finalize"
	profile := profileOrDefault(req.Profile)

	if err := requireParam(op, "job-id", req.JobID); err != nil {
		return nil, err
	}
	if err := requireParam(op, "appliance-label", req.ApplianceLabel); err != nil {
		return nil, err
	}
	if s.credentials == nil {
		return nil, core.Validation(op, "no upload user credentials configured")
	}

	session, err := s.store.Get(profile)
	if err != nil {
		return nil, err
	}
	if session.Stage < StageUnlocked || session.LockState != LockStateUnlocked {
		return nil, core.Validation(op, "%w (stage %s, %s)", ErrNotUnlocked, session.Stage, session.LockState)
	}

	defer func(begin time.Time) {
		s.observe(ctx, stepFinalize, audit.EventApplianceFinalize, profile, session.Endpoint, begin, err)
	}(time.Now())

	s.logger.Info("retrieving the upload summary object name from the control plane")
	ta, err := s.controlPlane.GetTransferAppliance(ctx, req.JobID, req.ApplianceLabel)
	if err != nil {
		return nil, err
	}

	s.logger.Info("retrieving the upload bucket name from the control plane")
	job, err := s.controlPlane.GetTransferJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	if job.UploadBucketName == "" {
		return nil, core.Other(op, fmt.Errorf("transfer job %s has no upload bucket", req.JobID))
	}

	if !req.SkipUploadCheck {
		s.logger.Info("validating the upload user credentials")
		admin, upload, err := s.credentials.ObjectStores(ctx)
		if err != nil {
			return nil, err
		}
		check := NewUploadCredentialCheck(admin, upload, job.UploadBucketName)
		check.logger = s.logger
		if err := check.Run(ctx); err != nil {
			return nil, err
		}

		session.Stage = session.Stage.raise(StageUploadValidated)
		if err := s.persist(session); err != nil {
			return nil, err
		}
	}

	uploadUser, err := s.credentials.UploadUser()
	if err != nil {
		return nil, err
	}

	dev, err := s.connect(session)
	if err != nil {
		return nil, err
	}

	s.logger.Info("storing the upload user configuration and credentials on the appliance")
	if err := dev.SetUploadConfig(ctx, device.UploadConfig{
		UploadBucket:            job.UploadBucketName,
		Overwrite:               false,
		ObjectNamePrefix:        "",
		UploadSummaryObjectName: ta.UploadStatusLogURI,
		UploadUserConfig:        uploadUser.Config,
		UploadUserPrivateKeyPEM: uploadUser.PrivateKeyPEM,
	}); err != nil {
		return nil, err
	}

	s.logger.Info("finalizing the appliance")
	if err := dev.Finalize(ctx); err != nil {
		return nil, err
	}

	session.Stage = StageFinalized
	session.LockState = LockStateLocked
	if err := s.persist(session); err != nil {
		return nil, err
	}

	res = &FinalizeResult{Result: Result{Session: session}, RelockRequired: true}
	status, err := dev.GetStatus(ctx)
	if err != nil {
		return res, err
	}
	res.Status = status
	return res, nil
}

// Show reports the status of the appliance registered under profile.
func (s *Sequencer) Show(ctx context.Context, profile string) (*Result, error) {
	session, err := s.store.Get(profileOrDefault(profile))
	if err != nil {
		return nil, err
	}
	dev, err := s.connect(session)
	if err != nil {
		return nil, err
	}
	status, err := dev.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Session: session, Status: status}, nil
}

// List returns every registered appliance.
func (s *Sequencer) List(_ context.Context) ([]*Session, error) {
	return s.store.List()
}

// Unregister forgets the appliance registered under profile.
func (s *Sequencer) Unregister(ctx context.Context, profile string) (session *Session, err error) {
	profile = profileOrDefault(profile)

	session, err = s.store.Get(profile)
	if err != nil {
		return nil, err
	}

	defer func(begin time.Time) {
		s.observe(ctx, stepUnregister, audit.EventApplianceUnregister, profile, session.Endpoint, begin, err)
	}(time.Now())

	if err := s.store.Delete(profile); err != nil {
		return nil, err
	}
	return session, nil
}
