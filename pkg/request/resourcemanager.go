package request

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/cloudctl/cloudctl/pkg/terraform"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	StackStates       = []string{"CREATING", "ACTIVE", "DELETING", "DELETED", "FAILED"}
	JobStates         = []string{"ACCEPTED", "IN_PROGRESS", "FAILED", "SUCCEEDED", "CANCELING", "CANCELED"}
	WorkRequestStates = []string{"ACCEPTED", "IN_PROGRESS", "FAILED", "SUCCEEDED"}
	JobOperations     = []string{"PLAN", "APPLY", "DESTROY", "IMPORT_TF_STATE"}
)

func terraformVersion(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	_, err := terraform.ResolveVersion(s)
	return err
}

func readableFile(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	info, err := os.Stat(s)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s)
	}
	return nil
}

// StackFields are the mutable properties shared by create and update.
type StackFields struct {
	DisplayName      string
	Description      string
	TerraformVersion string
	VariablesFile    string
}

func (f StackFields) schema() Schema {
	return Schema{
		"display-name":      {NotBlank, validation.Length(0, 255)},
		"description":       {validation.Length(0, 400)},
		"terraform-version": {validation.By(terraformVersion)},
		"variables-file":    {validation.By(readableFile)},
	}
}

func (f StackFields) values() map[string]any {
	return map[string]any{
		"display-name":      f.DisplayName,
		"description":       f.Description,
		"terraform-version": f.TerraformVersion,
		"variables-file":    f.VariablesFile,
	}
}

func (f StackFields) body(body map[string]any) error {
	if f.DisplayName != "" {
		body["displayName"] = f.DisplayName
	}
	if f.Description != "" {
		body["description"] = f.Description
	}
	if f.TerraformVersion != "" {
		v, err := terraform.ResolveVersion(f.TerraformVersion)
		if err != nil {
			return err
		}
		body["terraformVersion"] = v
	}
	if f.VariablesFile != "" {
		vars, err := terraform.LoadVariables(f.VariablesFile)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", f.VariablesFile, err)
		}
		body["variables"] = vars
	}
	return nil
}

type CreateStack struct {
	StackFields
	CompartmentID   string
	ConfigSourceZip string
}

func (r CreateStack) Validate() error {
	s := r.schema()
	s["compartment-id"] = Rules(Required, []validation.Rule{ID("compartment", "tenancy")})
	s["config-source"] = Rules(Required, []validation.Rule{validation.By(readableFile)})

	values := r.values()
	values["compartment-id"] = r.CompartmentID
	values["config-source"] = r.ConfigSourceZip
	return s.Validate("CreateStack", values)
}

// Body builds the create payload. The zip archive is sent base64 encoded.
func (r CreateStack) Body() (map[string]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	zip, err := os.ReadFile(r.ConfigSourceZip)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"compartmentId": r.CompartmentID,
		"configSource": map[string]any{
			"configSourceType":     "ZIP_UPLOAD",
			"zipFileBase64Encoded": base64.StdEncoding.EncodeToString(zip),
		},
	}
	if err := r.body(body); err != nil {
		return nil, err
	}
	return body, nil
}

type UpdateStack struct {
	StackFields
	StackID string
}

func (r UpdateStack) Validate() error {
	s := r.schema()
	s["stack-id"] = Rules(Required, []validation.Rule{ID("ormstack")})

	values := r.values()
	values["stack-id"] = r.StackID
	return s.Validate("UpdateStack", values)
}

func (r UpdateStack) Body() (map[string]any, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	body := map[string]any{}
	if err := r.body(body); err != nil {
		return nil, err
	}
	return body, nil
}

type ChangeCompartment struct {
	StackID       string
	CompartmentID string
}

func (r ChangeCompartment) Body() (map[string]any, error) {
	err := Schema{
		"stack-id":       Rules(Required, []validation.Rule{ID("ormstack")}),
		"compartment-id": Rules(Required, []validation.Rule{ID("compartment", "tenancy")}),
	}.Validate("ChangeStackCompartment", map[string]any{
		"stack-id":       r.StackID,
		"compartment-id": r.CompartmentID,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"compartmentId": r.CompartmentID}, nil
}

type CreateJob struct {
	StackID     string
	DisplayName string
	Operation   string
}

func (r CreateJob) Body() (map[string]any, error) {
	err := Schema{
		"stack-id":     Rules(Required, []validation.Rule{ID("ormstack")}),
		"display-name": {NotBlank, validation.Length(0, 255)},
		"operation":    Rules(Required, []validation.Rule{OneOf(JobOperations...)}),
	}.Validate("CreateJob", map[string]any{
		"stack-id":     r.StackID,
		"display-name": r.DisplayName,
		"operation":    r.Operation,
	})
	if err != nil {
		return nil, err
	}

	operation := strings.ToUpper(r.Operation)
	body := map[string]any{
		"stackId":   r.StackID,
		"operation": operation,
	}
	if r.DisplayName != "" {
		body["displayName"] = r.DisplayName
	}
	if operation == "APPLY" || operation == "DESTROY" {
		body["applyJobPlanResolution"] = map[string]any{"isAutoApproved": true}
	}
	return body, nil
}

// RequireID validates a single identifier flag.
func RequireID(op, flag, id string, types ...string) error {
	return Schema{flag: Rules(Required, []validation.Rule{ID(types...)})}.Validate(op, map[string]any{flag: id})
}
