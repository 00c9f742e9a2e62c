package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudctl/cloudctl/pkg/config"
	"github.com/cloudctl/cloudctl/pkg/controlplane"
	"github.com/cloudctl/cloudctl/pkg/observability"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	projectName = "cloudctl"
	envPrefix   = "CLOUDCTL"

	outputJSON = "json"
	outputYAML = "yaml"

	exitTimedOut = 2
)

var (
	flagJSON  bool
	flagDebug bool

	flagConfigFile     string
	flagProfile        string
	flagEndpoint       string
	flagOutput         string
	flagPushgatewayURL string
)

var metrics *observability.Metrics

var rootCmd = &cobra.Command{
	Use:           projectName,
	Short:         "Manage cloud resources and bring up data transfer appliances",
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(cmd); err != nil {
			return err
		}

		setupLogger()

		if flagDebug {
			slog.Debug("debug mode enabled")
		}

		if flagOutput != outputJSON && flagOutput != outputYAML {
			return fmt.Errorf("invalid --output %q, must be %s or %s", flagOutput, outputJSON, outputYAML)
		}

		metrics = observability.NewMetrics(nil)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	pushMetrics()

	if err != nil {
		if !errors.Is(err, errWaitTimedOut) {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for a wait that ran out of time and 1 for every other failure.
func exitCode(err error) int {
	if errors.Is(err, errWaitTimedOut) {
		return exitTimedOut
	}
	return 1
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Enable json logging")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config-file", "", "The path to the identity config file (default ~/.cloudctl/config)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", config.DefaultProfile, "The profile in the config file to load")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "The value to use as the service endpoint, including any required API version path")
	rootCmd.PersistentFlags().StringVar(&flagOutput, "output", outputJSON, "The output format, json or yaml")
	rootCmd.PersistentFlags().StringVar(&flagPushgatewayURL, "pushgateway-url", "", "Push the metrics of this invocation to the Prometheus Pushgateway at this URL")
}

func initializeConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	bindFlags(cmd, v)
	return nil
}

func setupLogger() {
	handlerOptions := &slog.HandlerOptions{}
	if flagDebug {
		handlerOptions.Level = slog.LevelDebug
		handlerOptions.AddSource = true
	}

	var handler slog.Handler
	if flagJSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOptions)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOptions)
	}

	if hostname, err := os.Hostname(); err == nil {
		handler = handler.WithAttrs([]slog.Attr{slog.String("hostname", hostname)})
	}
	slog.SetDefault(slog.New(handler))
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if err := v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix)); err != nil {
			panic(fmt.Errorf("failed to bind key to environment variable: %w", err))
		}
		if !f.Changed && v.IsSet(f.Name) {
			val := v.Get(f.Name)
			if err := cmd.Flags().Set(f.Name, fmt.Sprintf("%v", val)); err != nil {
				panic(fmt.Errorf("failed to set value of flag: %w", err))
			}
		}
	})
}

func pushMetrics() {
	if flagPushgatewayURL == "" || metrics == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	instance, _ := os.Hostname()
	if err := metrics.Push(ctx, flagPushgatewayURL, projectName, instance); err != nil {
		slog.Warn("failed to push metrics", slog.String("err", err.Error()))
	}
}

// loadIdentity reads the selected profile and applies --endpoint.
func loadIdentity() (*config.Identity, error) {
	path := flagConfigFile
	if path == "" {
		p, err := config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	identity, err := config.Load(path, flagProfile)
	if err != nil {
		return nil, err
	}
	if flagEndpoint != "" {
		overridden := identity.WithEndpointOverride(flagEndpoint)
		identity = &overridden
	}
	return identity, nil
}

func newControlPlane(identity *config.Identity) (*controlplane.Client, error) {
	httpClient := cleanhttp.DefaultPooledClient()
	if metrics != nil {
		httpClient = observability.InstrumentClient(metrics.Http, httpClient)
	}
	return controlplane.New(identity.ControlPlaneEndpoint(),
		controlplane.WithHTTPClient(httpClient),
		controlplane.WithToken(identity.Token),
	)
}
