package appliance

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/core"

	"gopkg.in/yaml.v3"
)

const sessionFileExt = ".yaml"

var ErrSessionNotFound = errors.New("no appliance registered for profile")

// SessionStore persists one Session per profile.
type SessionStore interface {
	Get(profile string) (*Session, error)
	Put(session *Session) error
	Delete(profile string) error
	List() ([]*Session, error)
}

// FileStore keeps every session in <dir>/<profile>.yaml. Writes replace the file
// atomically so an interrupted step never leaves a truncated session behind.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func validateProfile(op, profile string) error {
	if strings.TrimSpace(profile) == "" {
		return core.Validation(op, "appliance profile is empty")
	}
	if strings.ContainsAny(profile, `/\`) || profile == "." || profile == ".." {
		return core.Validation(op, "invalid appliance profile %q", profile)
	}
	return nil
}

func (s *FileStore) path(profile string) string {
	return filepath.Join(s.dir, profile+sessionFileExt)
}

func (s *FileStore) Get(profile string) (*Session, error) {
	const op = "GetSession"
	if err := validateProfile(op, profile); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(s.path(profile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.NotFound(op, fmt.Errorf("%w %s, run initialize-authentication first", ErrSessionNotFound, profile))
	} else if err != nil {
		return nil, core.Other(op, err)
	}

	session := &Session{}
	if err := yaml.Unmarshal(b, session); err != nil {
		return nil, core.Other(op, fmt.Errorf("failed to parse session %s: %w", s.path(profile), err))
	}
	session.Profile = profile
	return session, nil
}

func (s *FileStore) Put(session *Session) error {
	const op = "PutSession"
	if err := validateProfile(op, session.Profile); err != nil {
		return err
	}

	b, err := yaml.Marshal(session)
	if err != nil {
		return core.Other(op, err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return core.Other(op, fmt.Errorf("failed to create %s: %w", s.dir, err))
	}

	tmp, err := os.CreateTemp(s.dir, "."+session.Profile+"-*.tmp")
	if err != nil {
		return core.Other(op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return core.Other(op, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return core.Other(op, err)
	}
	if err := tmp.Close(); err != nil {
		return core.Other(op, err)
	}
	if err := os.Rename(tmp.Name(), s.path(session.Profile)); err != nil {
		return core.Other(op, err)
	}
	return nil
}

func (s *FileStore) Delete(profile string) error {
	const op = "DeleteSession"
	if err := validateProfile(op, profile); err != nil {
		return err
	}

	err := os.Remove(s.path(profile))
	if errors.Is(err, fs.ErrNotExist) {
		return core.NotFound(op, fmt.Errorf("%w %s", ErrSessionNotFound, profile))
	} else if err != nil {
		return core.Other(op, err)
	}
	return nil
}

// List returns every stored session ordered by profile.
func (s *FileStore) List() ([]*Session, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []*Session{}, nil
	} else if err != nil {
		return nil, core.Other("ListSessions", err)
	}

	profiles := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != sessionFileExt {
			continue
		}
		profiles = append(profiles, strings.TrimSuffix(name, sessionFileExt))
	}
	sort.Strings(profiles)

	sessions := make([]*Session, 0, len(profiles))
	for _, p := range profiles {
		session, err := s.Get(p)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
