package terraform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// LoadVariables reads a .tfvars (HCL) or .tfvars.json file. Resource manager only takes
// string variables, so any other value is passed on JSON encoded.
func LoadVariables(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseVariables(filepath.Base(path), b)
}

// ParseVariables parses src; filename decides between HCL and JSON syntax.
func ParseVariables(filename string, src []byte) (map[string]string, error) {
	parser := hclparse.NewParser()

	var file *hcl.File
	var diags hcl.Diagnostics
	if strings.HasSuffix(filename, ".json") {
		file, diags = parser.ParseJSON(src, filename)
	} else {
		file, diags = parser.ParseHCL(src, filename)
	}
	if diags.HasErrors() {
		return nil, diags
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make(map[string]string, len(attrs))
	var errs []error
	for _, name := range names {
		value, diags := attrs[name].Expr.Value(nil)
		if diags.HasErrors() {
			errs = append(errs, fmt.Errorf("variable %s: %w", name, diags))
			continue
		}
		s, err := stringify(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("variable %s: %w", name, err))
			continue
		}
		vars[name] = s
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return vars, nil
}

func stringify(v cty.Value) (string, error) {
	if v.IsNull() {
		return "", nil
	}
	if !v.IsWhollyKnown() {
		return "", errors.New("value is not known")
	}
	if v.Type() == cty.String {
		return v.AsString(), nil
	}
	if v.Type() == cty.Bool {
		return fmt.Sprintf("%t", v.True()), nil
	}
	if v.Type() == cty.Number {
		return v.AsBigFloat().Text('f', -1), nil
	}

	b, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
