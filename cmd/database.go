package cmd

import (
	"github.com/cloudctl/cloudctl/pkg/controlplane"
	"github.com/cloudctl/cloudctl/pkg/request"

	"github.com/spf13/cobra"
)

var autonomousDatabaseStates = []string{"PROVISIONING", "AVAILABLE", "STOPPING", "STOPPED", "STARTING", "TERMINATING", "TERMINATED", "UNAVAILABLE"}

var (
	flagAutonomousDatabaseID string

	waitAutonomousDatabaseStart  request.WaitFlags
	waitAutonomousDatabaseStop   request.WaitFlags
	waitAutonomousDatabaseDelete request.WaitFlags
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(autonomousDatabaseCmd)
	autonomousDatabaseCmd.AddCommand(autonomousDatabaseGetCmd, autonomousDatabaseStartCmd, autonomousDatabaseStopCmd, autonomousDatabaseDeleteCmd)

	for _, c := range autonomousDatabaseCmd.Commands() {
		c.Flags().StringVar(&flagAutonomousDatabaseID, "autonomous-database-id", "", "The identifier of the autonomous database")
	}
	for _, c := range []*cobra.Command{autonomousDatabaseStartCmd, autonomousDatabaseStopCmd, autonomousDatabaseDeleteCmd} {
		c.Flags().StringVar(&flagIfMatch, "if-match", "", "Only apply the change if the etag of the resource matches")
	}
	addWaitFlags(autonomousDatabaseStartCmd, &waitAutonomousDatabaseStart, autonomousDatabaseStates)
	addWaitFlags(autonomousDatabaseStopCmd, &waitAutonomousDatabaseStop, autonomousDatabaseStates)
	addWaitFlags(autonomousDatabaseDeleteCmd, &waitAutonomousDatabaseDelete, autonomousDatabaseStates)
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage databases",
}

var autonomousDatabaseCmd = &cobra.Command{
	Use:   "autonomous-database",
	Short: "Manage autonomous databases",
}

var autonomousDatabaseGetCmd = &cobra.Command{
	Use:          "get",
	Short:        "Get an autonomous database",
	SilenceUsage: true,
	RunE:         getRunE(controlplane.AutonomousDatabases, "autonomous-database-id", &flagAutonomousDatabaseID),
}

// autonomousDatabaseActionRunE invokes action on the database and optionally waits.
func autonomousDatabaseActionRunE(action string, w *request.WaitFlags) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := request.RequireID(action+"AutonomousDatabase", "autonomous-database-id", flagAutonomousDatabaseID, "autonomousdatabase"); err != nil {
			return err
		}
		if err := w.Validate(action+"AutonomousDatabase", autonomousDatabaseStates); err != nil {
			return err
		}

		rc, err := resources(controlplane.AutonomousDatabases)
		if err != nil {
			return err
		}
		res, err := rc.Action(cmd.Context(), flagAutonomousDatabaseID, action, nil, flagIfMatch)
		if err != nil {
			return err
		}

		return waitJob{
			flags:      *w,
			id:         flagAutonomousDatabaseID,
			stateField: rc.Collection().StateField,
			accessor:   rc.Accessor(),
			initial:    res.Raw,
		}.run(cmd.Context(), cmd.OutOrStdout())
	}
}

var autonomousDatabaseStartCmd = &cobra.Command{
	Use:          "start",
	Short:        "Start a stopped autonomous database",
	SilenceUsage: true,
	RunE:         autonomousDatabaseActionRunE("start", &waitAutonomousDatabaseStart),
}

var autonomousDatabaseStopCmd = &cobra.Command{
	Use:          "stop",
	Short:        "Stop an autonomous database",
	SilenceUsage: true,
	RunE:         autonomousDatabaseActionRunE("stop", &waitAutonomousDatabaseStop),
}

var autonomousDatabaseDeleteCmd = &cobra.Command{
	Use:          "delete",
	Short:        "Terminate an autonomous database",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := request.RequireID("DeleteAutonomousDatabase", "autonomous-database-id", flagAutonomousDatabaseID, "autonomousdatabase"); err != nil {
			return err
		}
		if err := waitAutonomousDatabaseDelete.Validate("DeleteAutonomousDatabase", autonomousDatabaseStates); err != nil {
			return err
		}

		rc, err := resources(controlplane.AutonomousDatabases)
		if err != nil {
			return err
		}
		if _, err := rc.Delete(cmd.Context(), flagAutonomousDatabaseID, flagIfMatch); err != nil {
			return err
		}

		return waitJob{
			flags:      waitAutonomousDatabaseDelete,
			id:         flagAutonomousDatabaseID,
			stateField: rc.Collection().StateField,
			accessor:   rc.Accessor(),
			deletion:   true,
		}.run(cmd.Context(), cmd.OutOrStdout())
	},
}
