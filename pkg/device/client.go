// Package device talks to the management API of a locally attached transfer appliance.
//
// Appliances present a self-signed certificate, so the TLS connection is trusted by
// comparing the leaf certificate fingerprint with the one printed on the device.
package device

import (
	"bytes"
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudctl/cloudctl/pkg/core"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

const (
	DefaultPort = 443

	apiPrefix = "/api/v1"
)

var (
	ErrFingerprintMismatch = errors.New("appliance certificate fingerprint mismatch")
	ErrInvalidFingerprint  = errors.New("invalid certificate fingerprint")
)

// Status is what the appliance reports about itself.
type Status struct {
	SerialNumber          string `json:"serialNumber" yaml:"serial-number"`
	LifecycleState        string `json:"lifecycleState" yaml:"lifecycle-state"`
	EncryptionConfigured  bool   `json:"encryptionConfigured" yaml:"encryption-configured"`
	LockStatus            string `json:"lockStatus" yaml:"lock-status"`
	FinalizeStatus        string `json:"finalizeStatus" yaml:"finalize-status"`
	UploadStatus          string `json:"uploadStatus,omitempty" yaml:"upload-status,omitempty"`
	TotalSpaceInBytes     int64  `json:"totalSpaceInBytes" yaml:"total-space-in-bytes"`
	AvailableSpaceInBytes int64  `json:"availableSpaceInBytes" yaml:"available-space-in-bytes"`
}

// UploadConfig tells the appliance where and as whom to upload once it is shipped back.
type UploadConfig struct {
	UploadBucket            string `json:"uploadBucket"`
	Overwrite               bool   `json:"overwrite"`
	ObjectNamePrefix        string `json:"objectNamePrefix"`
	UploadSummaryObjectName string `json:"uploadSummaryObjectName"`
	UploadUserConfig        string `json:"uploadUserOciConfig"`
	UploadUserPrivateKeyPEM string `json:"uploadUserPrivateKeyPem"`
}

type Client struct {
	endpoint   *url.URL
	httpClient *http.Client
	authToken  string
}

type Option func(*Client)

func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// Endpoint builds the management URL for an appliance address.
func Endpoint(ip string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return (&url.URL{Scheme: "https", Host: net.JoinHostPort(ip, strconv.Itoa(port))}).String()
}

// New returns a client whose connections only succeed when the server certificate
// matches fingerprint.
func New(endpoint, fingerprint string, options ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, core.Validation("NewDeviceClient", "invalid appliance endpoint %q", endpoint)
	}
	verify, err := pinnedVerifier(fingerprint)
	if err != nil {
		return nil, core.Validation("NewDeviceClient", "%v", err)
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Trust is established by VerifyPeerCertificate instead of a CA chain.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verify,
	}

	c := &Client{
		endpoint: u,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
		},
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// NormalizeFingerprint strips separators and lowercases a hex fingerprint.
func NormalizeFingerprint(fingerprint string) (string, error) {
	fp := strings.ToLower(strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(fingerprint)))
	if _, err := hex.DecodeString(fp); err != nil {
		return "", fmt.Errorf("%w: %q is not hexadecimal", ErrInvalidFingerprint, fingerprint)
	}
	switch len(fp) {
	case sha1.Size * 2, sha256.Size * 2:
		return fp, nil
	default:
		return "", fmt.Errorf("%w: %q must be a SHA-1 or SHA-256 digest", ErrInvalidFingerprint, fingerprint)
	}
}

// Fingerprint returns the hex SHA-256 (or SHA-1) digest of a DER certificate.
func Fingerprint(der []byte, sha256Digest bool) string {
	if sha256Digest {
		sum := sha256.Sum256(der)
		return hex.EncodeToString(sum[:])
	}
	sum := sha1.Sum(der)
	return hex.EncodeToString(sum[:])
}

func pinnedVerifier(fingerprint string) (func([][]byte, [][]*x509.Certificate) error, error) {
	want, err := NormalizeFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	useSHA256 := len(want) == sha256.Size*2

	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: no certificate presented", ErrFingerprintMismatch)
		}
		if got := Fingerprint(rawCerts[0], useSHA256); got != want {
			return fmt.Errorf("%w: expected %s, got %s", ErrFingerprintMismatch, want, got)
		}
		return nil
	}, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return core.Other(op, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint.JoinPath(apiPrefix, path).String(), reader)
	if err != nil {
		return core.Other(op, err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return core.Cancelled(op, ctx.Err())
		case errors.Is(err, ErrFingerprintMismatch):
			return core.Other(op, err)
		default:
			return core.Transient(op, err)
		}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Transient(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(payload))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return core.FromStatus(op, resp.StatusCode, errors.New(msg))
	}
	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return core.Other(op, fmt.Errorf("failed to decode appliance response: %w", err))
		}
	}
	return nil
}

// InitAuth performs the authentication handshake and returns the token used for
// every later call.
func (c *Client) InitAuth(ctx context.Context, serialID, accessToken string) (string, error) {
	const op = "InitAuth"
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"serialNumber": serialID, "accessToken": accessToken}
	if err := c.do(ctx, op, http.MethodPost, "/authentication", body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", core.Other(op, errors.New("appliance returned an empty auth token"))
	}
	c.authToken = resp.Token
	return resp.Token, nil
}

func (c *Client) ConfigureEncryption(ctx context.Context, passphrase string) error {
	return c.do(ctx, "ConfigureEncryption", http.MethodPost, "/encryption", map[string]string{"passphrase": passphrase}, nil)
}

func (c *Client) Unlock(ctx context.Context, passphrase string) error {
	return c.do(ctx, "UnlockAppliance", http.MethodPost, "/unlock", map[string]string{"passphrase": passphrase}, nil)
}

func (c *Client) SetUploadConfig(ctx context.Context, cfg UploadConfig) error {
	return c.do(ctx, "SetObjectStorageUploadConfig", http.MethodPut, "/uploadConfig", cfg, nil)
}

func (c *Client) Finalize(ctx context.Context) error {
	return c.do(ctx, "FinalizeAppliance", http.MethodPost, "/finalize", nil, nil)
}

func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	s := &Status{}
	if err := c.do(ctx, "GetPhysicalTransferAppliance", http.MethodGet, "/physicalTransferAppliance", nil, s); err != nil {
		return nil, err
	}
	return s, nil
}
