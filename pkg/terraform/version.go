// Package terraform handles the Terraform inputs of a resource manager stack: the
// Terraform version family and the variables of a .tfvars file.
package terraform

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-version"
)

// SupportedVersions are the Terraform families a stack can run with.
var SupportedVersions = []string{"0.11.x", "0.12.x", "0.13.x", "0.14.x", "1.0.x", "1.1.x", "1.2.x", "1.5.x"}

var ErrUnsupportedVersion = errors.New("unsupported terraform version")

type family struct {
	name    string
	version *version.Version
}

func families() []family {
	fs := make([]family, 0, len(SupportedVersions))
	for _, name := range SupportedVersions {
		fs = append(fs, family{name: name, version: version.Must(version.NewVersion(strings.TrimSuffix(name, ".x")))})
	}
	sort.Slice(fs, func(i, j int) bool { return fs[i].version.LessThan(fs[j].version) })
	return fs
}

// ResolveVersion maps s to a supported family. s is either a family ("1.2.x"), a
// version inside a family ("1.2" or "1.2.9") or a constraint (">= 1.0, < 1.3"), in
// which case the newest matching family wins.
func ResolveVersion(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty version", ErrUnsupportedVersion)
	}
	fs := families()

	if v, err := version.NewVersion(strings.TrimSuffix(s, ".x")); err == nil {
		for _, f := range fs {
			if segmentsMatch(f.version, v) {
				return f.name, nil
			}
		}
		return "", fmt.Errorf("%w %s, supported: %s", ErrUnsupportedVersion, s, strings.Join(SupportedVersions, ", "))
	}

	constraints, err := version.NewConstraint(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q is neither a version nor a constraint: %v", ErrUnsupportedVersion, s, err)
	}
	for i := len(fs) - 1; i >= 0; i-- {
		if constraints.Check(fs[i].version) {
			return fs[i].name, nil
		}
	}
	return "", fmt.Errorf("%w: no supported version satisfies %s", ErrUnsupportedVersion, constraints)
}

// segmentsMatch reports whether v falls into the major.minor family f.
func segmentsMatch(f, v *version.Version) bool {
	fs, vs := f.Segments(), v.Segments()
	return fs[0] == vs[0] && fs[1] == vs[1]
}
