// Package request validates command flags against a {flag: constraints} schema before a
// request body is built, so no invalid request ever reaches the control plane.
package request

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/core"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var ocidPattern = regexp.MustCompile(`^ocid1\.[a-z0-9]+\.[a-z0-9-]+\.[a-z0-9-]*\.[a-zA-Z0-9.]+$`)

// NotBlank rejects strings made of whitespace only. Empty strings are left to Required.
var NotBlank = validation.By(func(value any) error {
	s, _ := value.(string)
	if s != "" && strings.TrimSpace(s) == "" {
		return errors.New("cannot be whitespace or empty string")
	}
	return nil
})

// Required rejects empty and whitespace only strings.
var Required = []validation.Rule{
	validation.Required.Error("cannot be whitespace or empty string"),
	NotBlank,
}

// ID accepts provider identifiers of the given resource types, e.g. ID("stack").
func ID(types ...string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if !ocidPattern.MatchString(s) {
			return fmt.Errorf("%q is not a valid identifier", s)
		}
		if len(types) == 0 {
			return nil
		}
		kind := strings.SplitN(s, ".", 3)[1]
		for _, t := range types {
			if kind == t {
				return nil
			}
		}
		return fmt.Errorf("%q must identify a %s", s, strings.Join(types, " or "))
	})
}

// OneOf accepts any of values, ignoring case.
func OneOf(values ...string) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		for _, v := range values {
			if strings.EqualFold(s, v) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(values, ", "))
	})
}

// EachOneOf applies OneOf to every element of a string slice.
func EachOneOf(values ...string) validation.Rule {
	return validation.Each(OneOf(values...))
}

// Schema maps a flag name, without dashes, to its constraints.
type Schema map[string][]validation.Rule

// Validate checks values against s. Flags missing from values are validated as nil, so
// slice flags must always be present.
// Every failing flag is reported, keyed by its command line name.
func (s Schema) Validate(op string, values map[string]any) error {
	errs := validation.Errors{}
	for flag, rules := range s {
		errs["--"+flag] = validation.Validate(values[flag], rules...)
	}
	if err := errs.Filter(); err != nil {
		return core.Validation(op, "%w", err)
	}
	return nil
}

// Rules concatenates rule sets.
func Rules(sets ...[]validation.Rule) []validation.Rule {
	var rules []validation.Rule
	for _, set := range sets {
		rules = append(rules, set...)
	}
	return rules
}
