package request

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudctl/cloudctl/pkg/core"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	stackID       = "ocid1.ormstack.oc1.eu-frankfurt-1.aaaaaaaab3"
	compartmentID = "ocid1.compartment.oc1..aaaaaaaaq2"
)

func TestSchemaValidate(t *testing.T) {
	schema := Schema{
		"job-id":    Rules(Required, []validation.Rule{ID("transferjob")}),
		"operation": {OneOf(JobOperations...)},
	}

	tests := []struct {
		name    string
		values  map[string]any
		wantErr []string
	}{
		{
			name:   "valid",
			values: map[string]any{"job-id": "ocid1.transferjob.oc1..aaaa", "operation": "plan"},
		},
		{
			name:    "empty job id",
			values:  map[string]any{"job-id": "", "operation": "PLAN"},
			wantErr: []string{"--job-id: cannot be whitespace or empty string"},
		},
		{
			name:    "whitespace job id",
			values:  map[string]any{"job-id": "   "},
			wantErr: []string{"--job-id: cannot be whitespace or empty string"},
		},
		{
			name:    "missing job id",
			values:  map[string]any{},
			wantErr: []string{"--job-id: cannot be whitespace or empty string"},
		},
		{
			name:    "wrong resource type and unknown operation",
			values:  map[string]any{"job-id": stackID, "operation": "REFRESH"},
			wantErr: []string{"--job-id:", "must identify a transferjob", "--operation: must be one of PLAN, APPLY, DESTROY, IMPORT_TF_STATE"},
		},
		{
			name:    "malformed identifier",
			values:  map[string]any{"job-id": "job-1"},
			wantErr: []string{"is not a valid identifier"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate("Test", tt.values)
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestWaitFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   WaitFlags
		wantErr string
	}{
		{name: "defaults", flags: DefaultWaitFlags()},
		{name: "states any case", flags: WaitFlags{States: []string{"succeeded", "FAILED"}, MaxWaitSeconds: 90, IntervalSeconds: 30}},
		{name: "unknown state", flags: WaitFlags{States: []string{"DONE"}, MaxWaitSeconds: 90, IntervalSeconds: 30}, wantErr: "--wait-for-state"},
		{name: "zero max wait", flags: WaitFlags{MaxWaitSeconds: 0, IntervalSeconds: 30}, wantErr: "--max-wait-seconds: must be positive"},
		{name: "negative interval", flags: WaitFlags{MaxWaitSeconds: 90, IntervalSeconds: -1}, wantErr: "--wait-interval-seconds"},
		{name: "interval above max wait", flags: WaitFlags{MaxWaitSeconds: 10, IntervalSeconds: 30}, wantErr: "must not exceed --max-wait-seconds"},
		{name: "negative retries", flags: WaitFlags{MaxWaitSeconds: 90, IntervalSeconds: 30, MaxRetries: -1}, wantErr: "--max-retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate("Wait", JobStates)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, core.IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWaitFlagsTarget(t *testing.T) {
	w := WaitFlags{States: []string{"ACTIVE"}, MaxWaitSeconds: 90, IntervalSeconds: 30}
	assert.True(t, w.Enabled())
	assert.False(t, DefaultWaitFlags().Enabled())

	target := w.Target(stackID, "lifecycleState", nil)
	assert.Equal(t, stackID, target.ID)
	assert.Equal(t, []string{"ACTIVE"}, target.Targets)
	assert.Equal(t, 90, w.Config().MaxWaitSeconds)
}

func TestCreateStackBody(t *testing.T) {
	dir := t.TempDir()
	zip := filepath.Join(dir, "config.zip")
	require.NoError(t, os.WriteFile(zip, []byte("PK\x03\x04"), 0o600))
	vars := filepath.Join(dir, "prod.tfvars")
	require.NoError(t, os.WriteFile(vars, []byte(`region = "eu-frankfurt-1"`), 0o600))

	body, err := CreateStack{
		StackFields: StackFields{
			DisplayName:      "network",
			TerraformVersion: "1.2",
			VariablesFile:    vars,
		},
		CompartmentID:   compartmentID,
		ConfigSourceZip: zip,
	}.Body()
	require.NoError(t, err)

	assert.Equal(t, compartmentID, body["compartmentId"])
	assert.Equal(t, "network", body["displayName"])
	assert.Equal(t, "1.2.x", body["terraformVersion"])
	assert.Equal(t, map[string]string{"region": "eu-frankfurt-1"}, body["variables"])
	assert.Equal(t, map[string]any{
		"configSourceType":     "ZIP_UPLOAD",
		"zipFileBase64Encoded": base64.StdEncoding.EncodeToString([]byte("PK\x03\x04")),
	}, body["configSource"])
	assert.NotContains(t, body, "description")
}

func TestCreateStackValidation(t *testing.T) {
	_, err := CreateStack{
		StackFields:     StackFields{TerraformVersion: "9.9.x", VariablesFile: "/does/not/exist.tfvars"},
		CompartmentID:   stackID,
		ConfigSourceZip: "",
	}.Body()
	require.Error(t, err)
	assert.True(t, core.IsValidation(err))
	for _, flag := range []string{"--compartment-id", "--config-source", "--terraform-version", "--variables-file"} {
		assert.Contains(t, err.Error(), flag)
	}
}

func TestUpdateStackBody(t *testing.T) {
	body, err := UpdateStack{StackID: stackID, StackFields: StackFields{Description: "shared network"}}.Body()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"description": "shared network"}, body)

	_, err = UpdateStack{StackID: compartmentID}.Body()
	assert.True(t, core.IsValidation(err))
}

func TestChangeCompartmentBody(t *testing.T) {
	body, err := ChangeCompartment{StackID: stackID, CompartmentID: compartmentID}.Body()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"compartmentId": compartmentID}, body)

	_, err = ChangeCompartment{StackID: stackID}.Body()
	assert.True(t, core.IsValidation(err))
}

func TestCreateJobBody(t *testing.T) {
	tests := []struct {
		operation    string
		autoApproved bool
	}{
		{operation: "plan"},
		{operation: "APPLY", autoApproved: true},
		{operation: "Destroy", autoApproved: true},
		{operation: "IMPORT_TF_STATE"},
	}

	for _, tt := range tests {
		t.Run(tt.operation, func(t *testing.T) {
			body, err := CreateJob{StackID: stackID, Operation: tt.operation}.Body()
			require.NoError(t, err)
			assert.Equal(t, stackID, body["stackId"])
			_, ok := body["applyJobPlanResolution"]
			assert.Equal(t, tt.autoApproved, ok)
		})
	}

	_, err := CreateJob{StackID: stackID}.Body()
	assert.True(t, core.IsValidation(err))
}

func TestRequireID(t *testing.T) {
	assert.NoError(t, RequireID("GetStack", "stack-id", stackID, "ormstack"))
	assert.True(t, core.IsValidation(RequireID("GetStack", "stack-id", " ", "ormstack")))
	assert.True(t, core.IsValidation(RequireID("GetStack", "stack-id", compartmentID, "ormstack")))
}
