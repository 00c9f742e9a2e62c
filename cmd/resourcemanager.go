package cmd

import (
	"errors"

	"github.com/cloudctl/cloudctl/pkg/controlplane"
	"github.com/cloudctl/cloudctl/pkg/request"

	"github.com/spf13/cobra"
)

var (
	flagStackID       string
	flagJobID         string
	flagWorkRequestID string
	flagCompartmentID string
	flagIfMatch       string

	flagStackCreate request.CreateStack
	flagStackUpdate request.StackFields
	flagJobCreate   request.CreateJob

	waitStackCreate            request.WaitFlags
	waitStackUpdate            request.WaitFlags
	waitStackDelete            request.WaitFlags
	waitStackChangeCompartment request.WaitFlags
	waitJobCreate              request.WaitFlags
	waitJobCancel              request.WaitFlags
)

func init() {
	rootCmd.AddCommand(resourceManagerCmd)
	resourceManagerCmd.AddCommand(stackCmd, jobCmd, workRequestCmd)
	stackCmd.AddCommand(stackCreateCmd, stackGetCmd, stackUpdateCmd, stackDeleteCmd, stackChangeCompartmentCmd)
	jobCmd.AddCommand(jobCreateCmd, jobGetCmd, jobCancelCmd)
	workRequestCmd.AddCommand(workRequestGetCmd)

	stackFieldFlags := func(cmd *cobra.Command, f *request.StackFields) {
		cmd.Flags().StringVar(&f.DisplayName, "display-name", "", "The display name of the stack")
		cmd.Flags().StringVar(&f.Description, "description", "", "The description of the stack")
		cmd.Flags().StringVar(&f.TerraformVersion, "terraform-version", "", "The Terraform version family (e.g. 1.2.x) or a version constraint")
		cmd.Flags().StringVar(&f.VariablesFile, "variables-file", "", "A .tfvars or .tfvars.json file with the stack variables")
	}

	stackFieldFlags(stackCreateCmd, &flagStackCreate.StackFields)
	stackCreateCmd.Flags().StringVar(&flagStackCreate.CompartmentID, "compartment-id", "", "The compartment to create the stack in")
	stackCreateCmd.Flags().StringVar(&flagStackCreate.ConfigSourceZip, "config-source", "", "The zip archive with the Terraform configuration")
	addWaitFlags(stackCreateCmd, &waitStackCreate, request.StackStates)

	for _, c := range []*cobra.Command{stackGetCmd, stackUpdateCmd, stackDeleteCmd, stackChangeCompartmentCmd} {
		c.Flags().StringVar(&flagStackID, "stack-id", "", "The identifier of the stack")
	}
	stackFieldFlags(stackUpdateCmd, &flagStackUpdate)
	stackChangeCompartmentCmd.Flags().StringVar(&flagCompartmentID, "compartment-id", "", "The compartment to move the stack to")
	for _, c := range []*cobra.Command{stackUpdateCmd, stackDeleteCmd, stackChangeCompartmentCmd, jobCancelCmd} {
		c.Flags().StringVar(&flagIfMatch, "if-match", "", "Only apply the change if the etag of the resource matches")
	}
	addWaitFlags(stackUpdateCmd, &waitStackUpdate, request.StackStates)
	addWaitFlags(stackDeleteCmd, &waitStackDelete, request.StackStates)
	addWaitFlags(stackChangeCompartmentCmd, &waitStackChangeCompartment, request.WorkRequestStates)

	jobCreateCmd.Flags().StringVar(&flagJobCreate.StackID, "stack-id", "", "The stack to run the job against")
	jobCreateCmd.Flags().StringVar(&flagJobCreate.DisplayName, "display-name", "", "The display name of the job")
	jobCreateCmd.Flags().StringVar(&flagJobCreate.Operation, "operation", "", "The Terraform operation: PLAN, APPLY, DESTROY or IMPORT_TF_STATE")
	addWaitFlags(jobCreateCmd, &waitJobCreate, request.JobStates)

	for _, c := range []*cobra.Command{jobGetCmd, jobCancelCmd} {
		c.Flags().StringVar(&flagJobID, "job-id", "", "The identifier of the job")
	}
	addWaitFlags(jobCancelCmd, &waitJobCancel, request.JobStates)

	workRequestGetCmd.Flags().StringVar(&flagWorkRequestID, "work-request-id", "", "The identifier of the work request")
}

var resourceManagerCmd = &cobra.Command{
	Use:   "resource-manager",
	Short: "Manage Terraform stacks and jobs",
}

var stackCmd = &cobra.Command{
	Use:   "stack",
	Short: "Manage stacks",
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage stack jobs",
}

var workRequestCmd = &cobra.Command{
	Use:   "work-request",
	Short: "Inspect work requests",
}

// idOf returns the identifier of a freshly created resource.
func idOf(raw map[string]any) (string, error) {
	id, _ := raw["id"].(string)
	if id == "" {
		return "", errors.New("the service response carries no resource identifier to wait on")
	}
	return id, nil
}

func resources(collection controlplane.Collection) (*controlplane.ResourceClient, error) {
	identity, err := loadIdentity()
	if err != nil {
		return nil, err
	}
	cp, err := newControlPlane(identity)
	if err != nil {
		return nil, err
	}
	return cp.Resources(collection), nil
}

// getRunE renders the member of collection identified by *id.
func getRunE(collection controlplane.Collection, flag string, id *string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := request.RequireID("Get"+collection.Name, flag, *id); err != nil {
			return err
		}
		rc, err := resources(collection)
		if err != nil {
			return err
		}
		res, err := rc.Fetch(cmd.Context(), *id)
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), flagOutput, res.Raw)
	}
}

var stackCreateCmd = &cobra.Command{
	Use:          "create",
	Short:        "Create a stack from a zip archive",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := waitStackCreate.Validate("CreateStack", request.StackStates); err != nil {
			return err
		}
		body, err := flagStackCreate.Body()
		if err != nil {
			return err
		}

		rc, err := resources(controlplane.Stacks)
		if err != nil {
			return err
		}
		res, err := rc.Create(cmd.Context(), body)
		if err != nil {
			return err
		}

		job := waitJob{flags: waitStackCreate, stateField: rc.Collection().StateField, accessor: rc.Accessor(), initial: res.Raw}
		if job.flags.Enabled() {
			if job.id, err = idOf(res.Raw); err != nil {
				return err
			}
		}
		return job.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var stackGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Get a stack",
	SilenceUsage: true,
	RunE:         getRunE(controlplane.Stacks, "stack-id", &flagStackID),
}

var stackUpdateCmd = &cobra.Command{
	Use:          "update",
	Short:        "Update a stack",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := waitStackUpdate.Validate("UpdateStack", request.StackStates); err != nil {
			return err
		}
		body, err := request.UpdateStack{StackID: flagStackID, StackFields: flagStackUpdate}.Body()
		if err != nil {
			return err
		}

		rc, err := resources(controlplane.Stacks)
		if err != nil {
			return err
		}
		res, err := rc.MutateIfMatch(cmd.Context(), flagStackID, body, flagIfMatch)
		if err != nil {
			return err
		}

		return waitJob{
			flags:      waitStackUpdate,
			id:         flagStackID,
			stateField: rc.Collection().StateField,
			accessor:   rc.Accessor(),
			initial:    res.Raw,
		}.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var stackDeleteCmd = &cobra.Command{
	Use:          "delete",
	Short:        "Delete a stack",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := request.RequireID("DeleteStack", "stack-id", flagStackID, "ormstack"); err != nil {
			return err
		}
		if err := waitStackDelete.Validate("DeleteStack", request.StackStates); err != nil {
			return err
		}

		rc, err := resources(controlplane.Stacks)
		if err != nil {
			return err
		}
		if _, err := rc.Delete(cmd.Context(), flagStackID, flagIfMatch); err != nil {
			return err
		}

		return waitJob{
			flags:      waitStackDelete,
			id:         flagStackID,
			stateField: rc.Collection().StateField,
			accessor:   rc.Accessor(),
			deletion:   true,
		}.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var stackChangeCompartmentCmd = &cobra.Command{
	Use:          "change-compartment",
	Short:        "Move a stack to another compartment",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := waitStackChangeCompartment.Validate("ChangeStackCompartment", request.WorkRequestStates); err != nil {
			return err
		}
		body, err := request.ChangeCompartment{StackID: flagStackID, CompartmentID: flagCompartmentID}.Body()
		if err != nil {
			return err
		}

		identity, err := loadIdentity()
		if err != nil {
			return err
		}
		cp, err := newControlPlane(identity)
		if err != nil {
			return err
		}

		res, err := cp.Resources(controlplane.Stacks).Action(cmd.Context(), flagStackID, "changeCompartment", body, flagIfMatch)
		if err != nil {
			return err
		}
		if !waitStackChangeCompartment.Enabled() {
			return nil
		}
		if res.WorkRequestID == "" {
			return errors.New("the service response carries no work request to wait on")
		}

		workRequests := cp.Resources(controlplane.WorkRequests)
		return waitJob{
			flags:      waitStackChangeCompartment,
			id:         res.WorkRequestID,
			stateField: workRequests.Collection().StateField,
			accessor:   workRequests.Accessor(),
		}.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var jobCreateCmd = &cobra.Command{
	Use:          "create",
	Short:        "Run a Terraform operation against a stack",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := waitJobCreate.Validate("CreateJob", request.JobStates); err != nil {
			return err
		}
		body, err := flagJobCreate.Body()
		if err != nil {
			return err
		}

		rc, err := resources(controlplane.Jobs)
		if err != nil {
			return err
		}
		res, err := rc.Create(cmd.Context(), body)
		if err != nil {
			return err
		}

		job := waitJob{flags: waitJobCreate, stateField: rc.Collection().StateField, accessor: rc.Accessor(), initial: res.Raw}
		if job.flags.Enabled() {
			if job.id, err = idOf(res.Raw); err != nil {
				return err
			}
		}
		return job.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var jobGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Get a job",
	SilenceUsage: true,
	RunE:         getRunE(controlplane.Jobs, "job-id", &flagJobID),
}

var jobCancelCmd = &cobra.Command{
	Use:          "cancel",
	Short:        "Cancel a queued or running job",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := request.RequireID("CancelJob", "job-id", flagJobID, "ormjob"); err != nil {
			return err
		}
		if err := waitJobCancel.Validate("CancelJob", request.JobStates); err != nil {
			return err
		}

		rc, err := resources(controlplane.Jobs)
		if err != nil {
			return err
		}
		if _, err := rc.Delete(cmd.Context(), flagJobID, flagIfMatch); err != nil {
			return err
		}

		return waitJob{
			flags:      waitJobCancel,
			id:         flagJobID,
			stateField: rc.Collection().StateField,
			accessor:   rc.Accessor(),
			deletion:   true,
		}.run(cmd.Context(), cmd.OutOrStdout())
	},
}

var workRequestGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Get a work request",
	SilenceUsage: true,
	RunE:         getRunE(controlplane.WorkRequests, "work-request-id", &flagWorkRequestID),
}
