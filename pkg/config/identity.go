package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/core"
	"github.com/cloudctl/cloudctl/pkg/objectstore"

	"gopkg.in/ini.v1"
)

const (
	DefaultProfile = "DEFAULT"

	configDirName            = ".cloudctl"
	configFileName           = "config"
	uploadUserConfigFileName = "config_upload_user"
)

// Identity is one profile section of an identity config file.
type Identity struct {
	Profile    string `ini:"-"`
	ConfigFile string `ini:"-"`

	Endpoint  string `ini:"endpoint"`
	Region    string `ini:"region"`
	User      string `ini:"user"`
	Namespace string `ini:"namespace"`
	Token     string `ini:"token"`
	KeyFile   string `ini:"key_file"`

	StorageBackend   string `ini:"storage_backend"`
	StorageEndpoint  string `ini:"storage_endpoint"`
	StorageAccessKey string `ini:"storage_access_key"`
	StorageSecretKey string `ini:"storage_secret_key"`
	StorageAccount   string `ini:"storage_account"`

	endpointOverride string
}

// Dir returns ~/.cloudctl.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

func DefaultConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// UploadUserConfigPath is the fixed location of the upload user identity. Only its
// DEFAULT section is read.
func UploadUserConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, uploadUserConfigFileName), nil
}

// Load reads profile from the INI file at path.
func Load(path, profile string) (*Identity, error) {
	if profile == "" {
		profile = DefaultProfile
	}
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	section, err := f.GetSection(profile)
	if err != nil {
		return nil, core.Validation("LoadConfig", "profile %s not found in %s", profile, path)
	}

	id := &Identity{}
	if err := section.MapTo(id); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s in %s: %w", profile, path, err)
	}
	id.Profile = profile
	id.ConfigFile = path

	if id.User == "" {
		return nil, core.Validation("LoadConfig", "profile %s in %s has no user", profile, path)
	}
	return id, nil
}

// WithEndpointOverride returns a copy that talks to endpoint instead of the configured one.
func (i Identity) WithEndpointOverride(endpoint string) Identity {
	i.endpointOverride = endpoint
	return i
}

// WithoutEndpointOverride returns a copy that resolves endpoints from its own config file.
func (i Identity) WithoutEndpointOverride() Identity {
	i.endpointOverride = ""
	return i
}

// ControlPlaneEndpoint is the override when one is set and the configured endpoint otherwise.
func (i Identity) ControlPlaneEndpoint() string {
	if i.endpointOverride != "" {
		return i.endpointOverride
	}
	return i.Endpoint
}

// ObjectStoreConfig describes the object storage of the identity. The endpoint override
// only applies to the control plane and is never used here.
func (i Identity) ObjectStoreConfig() objectstore.Config {
	return objectstore.Config{
		Backend:   objectstore.Backend(strings.ToLower(i.StorageBackend)),
		Endpoint:  i.StorageEndpoint,
		Region:    i.Region,
		Namespace: i.Namespace,
		AccessKey: i.StorageAccessKey,
		SecretKey: i.StorageSecretKey,
		Account:   i.StorageAccount,
	}
}

// Raw returns the content of the file the identity was loaded from.
func (i Identity) Raw() (string, error) {
	b, err := os.ReadFile(i.ConfigFile)
	if err != nil {
		return "", fmt.Errorf("failed to read config file %s: %w", i.ConfigFile, err)
	}
	return string(b), nil
}

// PrivateKeyPEM returns the content of key_file.
func (i Identity) PrivateKeyPEM() (string, error) {
	if i.KeyFile == "" {
		return "", core.Validation("LoadConfig", "profile %s in %s has no key_file", i.Profile, i.ConfigFile)
	}
	path, err := ExpandHome(i.KeyFile)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	return string(b), nil
}

func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
