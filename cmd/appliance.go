package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cloudctl/cloudctl/pkg/appliance"
	"github.com/cloudctl/cloudctl/pkg/audit"
	"github.com/cloudctl/cloudctl/pkg/config"
	"github.com/cloudctl/cloudctl/pkg/device"
	"github.com/cloudctl/cloudctl/pkg/objectstore"
	"github.com/cloudctl/cloudctl/pkg/prompt"

	"github.com/spf13/cobra"
)

var (
	flagApplianceProfile string
	flagApplianceJobID   string
	flagApplianceLabel   string
	flagAuditBucket      string
	flagAuditPrefix      string
	flagNoAudit          bool
	flagSkipUploadCheck  bool
	flagForce            bool

	flagInitAuth appliance.InitAuthRequest
)

func init() {
	rootCmd.AddCommand(dtsCmd)
	dtsCmd.AddCommand(physicalApplianceCmd)
	physicalApplianceCmd.AddCommand(
		initAuthCmd,
		configureEncryptionCmd,
		unlockCmd,
		finalizeCmd,
		showApplianceCmd,
		listAppliancesCmd,
		unregisterApplianceCmd,
	)

	physicalApplianceCmd.PersistentFlags().StringVar(&flagApplianceProfile, "appliance-profile", config.DefaultProfile, "The name of the profile the appliance is registered under")
	physicalApplianceCmd.PersistentFlags().StringVar(&flagAuditBucket, "audit-bucket", "", "Archive audit events of appliance steps to this bucket")
	physicalApplianceCmd.PersistentFlags().StringVar(&flagAuditPrefix, "audit-prefix", audit.DefaultConfig().Store.Prefix, "The object name prefix of archived audit events")
	physicalApplianceCmd.PersistentFlags().BoolVar(&flagNoAudit, "no-audit", false, "Disable audit events of appliance steps")

	initAuthCmd.Flags().StringVar(&flagInitAuth.JobID, "job-id", "", "The transfer job the appliance belongs to")
	initAuthCmd.Flags().StringVar(&flagInitAuth.ApplianceLabel, "appliance-label", "", "The label of the appliance")
	initAuthCmd.Flags().StringVar(&flagInitAuth.CertFingerprint, "appliance-cert-fingerprint", "", "The fingerprint of the certificate the appliance presents")
	initAuthCmd.Flags().StringVar(&flagInitAuth.ApplianceIP, "appliance-ip", "", "The IP address of the appliance")
	initAuthCmd.Flags().IntVar(&flagInitAuth.AppliancePort, "appliance-port", device.DefaultPort, "The port of the appliance management API")
	initAuthCmd.Flags().StringVar(&flagInitAuth.AccessToken, "access-token", "", "The access token of the appliance; prompted for when omitted")

	for _, c := range []*cobra.Command{configureEncryptionCmd, unlockCmd, finalizeCmd} {
		c.Flags().StringVar(&flagApplianceJobID, "job-id", "", "The transfer job the appliance belongs to")
		c.Flags().StringVar(&flagApplianceLabel, "appliance-label", "", "The label of the appliance")
	}
	finalizeCmd.Flags().BoolVar(&flagSkipUploadCheck, "skip-upload-user-check", false, "Do not verify the permissions of the upload user before finalizing")
	unregisterApplianceCmd.Flags().BoolVar(&flagForce, "force", false, "Do not ask for confirmation")
}

var dtsCmd = &cobra.Command{
	Use:   "dts",
	Short: "Data transfer service",
}

var physicalApplianceCmd = &cobra.Command{
	Use:   "physical-appliance",
	Short: "Bring up a physical transfer appliance",
}

// identityCredentials resolves the admin identity from the selected profile and the
// upload identity from its own config file.
type identityCredentials struct {
	admin *config.Identity
}

func loadUploadUser() (*config.Identity, error) {
	path, err := config.UploadUserConfigPath()
	if err != nil {
		return nil, err
	}
	return config.Load(path, config.DefaultProfile)
}

func (c identityCredentials) ObjectStores(ctx context.Context) (appliance.Identity, appliance.Identity, error) {
	// --endpoint points at the control plane, both identities resolve object storage
	// from their own config.
	adminStore, err := objectstore.New(ctx, c.admin.WithoutEndpointOverride().ObjectStoreConfig())
	if err != nil {
		return appliance.Identity{}, appliance.Identity{}, err
	}

	upload, err := loadUploadUser()
	if err != nil {
		return appliance.Identity{}, appliance.Identity{}, err
	}
	uploadStore, err := objectstore.New(ctx, upload.WithoutEndpointOverride().ObjectStoreConfig())
	if err != nil {
		return appliance.Identity{}, appliance.Identity{}, err
	}

	return appliance.Identity{Name: c.admin.User, Store: adminStore},
		appliance.Identity{Name: upload.User, Store: uploadStore},
		nil
}

func (c identityCredentials) UploadUser() (*appliance.UploadUser, error) {
	upload, err := loadUploadUser()
	if err != nil {
		return nil, err
	}
	raw, err := upload.Raw()
	if err != nil {
		return nil, err
	}
	key, err := upload.PrivateKeyPEM()
	if err != nil {
		return nil, err
	}
	return &appliance.UploadUser{Config: raw, PrivateKeyPEM: key}, nil
}

func connectDevice(endpoint, fingerprint, authToken string) (appliance.DeviceClient, error) {
	return device.New(endpoint, fingerprint, device.WithAuthToken(authToken))
}

func newAuditLogger(ctx context.Context, identity *config.Identity) (audit.Logger, error) {
	cfg := audit.DefaultConfig()
	cfg.Enabled = !flagNoAudit
	cfg.Store.Bucket = flagAuditBucket
	cfg.Store.Prefix = flagAuditPrefix
	if !cfg.Enabled || cfg.Store.Bucket == "" {
		return audit.New(nil, "", cfg)
	}

	store, err := objectstore.New(ctx, identity.WithoutEndpointOverride().ObjectStoreConfig())
	if err != nil {
		return nil, err
	}
	namespace, err := store.Namespace(ctx)
	if err != nil {
		return nil, err
	}
	return audit.New(store, namespace, cfg)
}

func sessionStore() (*appliance.FileStore, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return appliance.NewFileStore(filepath.Join(dir, "appliances")), nil
}

// withSequencer builds a Sequencer for the selected profile, runs fn and flushes the
// audit trail afterwards.
func withSequencer(ctx context.Context, fn func(*appliance.Sequencer) error) (err error) {
	identity, err := loadIdentity()
	if err != nil {
		return err
	}
	cp, err := newControlPlane(identity)
	if err != nil {
		return err
	}
	store, err := sessionStore()
	if err != nil {
		return err
	}
	auditLogger, err := newAuditLogger(ctx, identity)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := audit.Close(context.WithoutCancel(ctx), auditLogger); closeErr != nil {
			slog.Warn("failed to archive audit events", slog.String("err", closeErr.Error()))
		}
	}()

	seq := appliance.NewSequencer(
		appliance.LoggingMiddleware()(cp),
		connectDevice,
		prompt.New(),
		store,
		appliance.WithCredentials(identityCredentials{admin: identity}),
		appliance.WithAuditLogger(auditLogger),
		appliance.WithMetrics(metrics),
		appliance.WithLogger(slog.Default()),
	)
	return fn(seq)
}

var initAuthCmd = &cobra.Command{
	Use:          "initialize-authentication",
	Short:        "Register an appliance and authenticate against it",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			req := flagInitAuth
			req.Profile = flagApplianceProfile
			res, err := seq.InitializeAuthentication(cmd.Context(), req)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flagOutput, res)
		})
	},
}

var configureEncryptionCmd = &cobra.Command{
	Use:          "configure-encryption",
	Short:        "Configure encryption on the appliance",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			res, err := seq.ConfigureEncryption(cmd.Context(), flagApplianceProfile, flagApplianceJobID, flagApplianceLabel)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flagOutput, res)
		})
	},
}

var unlockCmd = &cobra.Command{
	Use:          "unlock",
	Short:        "Unlock the appliance",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			res, err := seq.Unlock(cmd.Context(), appliance.UnlockRequest{
				Profile:        flagApplianceProfile,
				JobID:          flagApplianceJobID,
				ApplianceLabel: flagApplianceLabel,
			})
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flagOutput, res)
		})
	},
}

var finalizeCmd = &cobra.Command{
	Use:          "finalize",
	Short:        "Validate the upload user and finalize the appliance",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			res, err := seq.Finalize(cmd.Context(), appliance.FinalizeRequest{
				Profile:         flagApplianceProfile,
				JobID:           flagApplianceJobID,
				ApplianceLabel:  flagApplianceLabel,
				SkipUploadCheck: flagSkipUploadCheck,
			})
			if err != nil {
				return err
			}
			slog.Info("the appliance is finalized and locked, unlock it again to inspect it")
			return render(cmd.OutOrStdout(), flagOutput, res)
		})
	},
}

var showApplianceCmd = &cobra.Command{
	Use:          "show",
	Short:        "Show the status of a registered appliance",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			res, err := seq.Show(cmd.Context(), flagApplianceProfile)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flagOutput, res)
		})
	},
}

var listAppliancesCmd = &cobra.Command{
	Use:          "list",
	Short:        "List registered appliances",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			sessions, err := seq.List(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), flagOutput, sessions)
		})
	},
}

var unregisterApplianceCmd = &cobra.Command{
	Use:          "unregister",
	Short:        "Forget a registered appliance",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !flagForce {
			ok, err := prompt.New().Confirm(fmt.Sprintf("Unregister the appliance of profile %s?", flagApplianceProfile))
			if err != nil {
				return err
			}
			if !ok {
				slog.Info("aborted")
				return nil
			}
		}
		return withSequencer(cmd.Context(), func(seq *appliance.Sequencer) error {
			session, err := seq.Unregister(cmd.Context(), flagApplianceProfile)
			if err != nil {
				return err
			}
			slog.Info("unregistered appliance", slog.String("profile", session.Profile), slog.String("serial", session.SerialID))
			return nil
		})
	},
}
