package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"quickbench/internal/banner"
	"quickbench/internal/cli"
	"quickbench/internal/dummy"
	"quickbench/internal/logging"
	"quickbench/internal/runid"
	"quickbench/internal/runner"
	"quickbench/internal/storage"
)

// env names that do not follow the FLAG_NAME pattern
var envAliases = map[string]string{
	"label": "CONFIG",
}

// NewRootCmd builds the command tree. Each call gets its own viper instance,
// so tests can build as many as they like.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "quickbench",
		Short: "quickbench - QuickPizza load generator for collector benchmarks",
		Long: `
quickbench drives fixed-shape POST /api/pizza load against QuickPizza and
records every sample into a gzip CSV file named after the run.

Typical flow:
1. quickbench run <label>        record a run
2. quickbench analyze <file>     latency and RPS statistics
3. quickbench plot <file>        request time and RPS CDF charts`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	root.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file (default is $HOME/.quickbench.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	v.BindEnv("log-level", "LOG_LEVEL")

	root.AddCommand(
		newRunCmd(v),
		newAnalyzeCmd(),
		newPlotCmd(),
		newStorageCmd(),
		newHistoryCmd(),
		newDummyCmd(v),
	)
	return root
}

// Execute runs the CLI and exits 1 on any error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config file %s", cfgFile)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.AddConfigPath(home)
	v.SetConfigType("yaml")
	v.SetConfigName(".quickbench")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return errors.Wrap(err, "read config file")
		}
	}
	return nil
}

// bind ties every local flag of cmd to the viper key of the same name.
func bind(v *viper.Viper, cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		v.BindPFlag(f.Name, f)
		if env, ok := envAliases[f.Name]; ok {
			v.BindEnv(f.Name, env)
		}
	})
}

func newLogger(v *viper.Viper) (*zap.SugaredLogger, error) {
	return logging.New(v.GetString("log-level"))
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// --- Run ---

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [label]",
		Short: "Record one benchmark run",
		Long: `Runs --vus virtual users against --base-url for --duration and writes
every sample to <out-dir>/<DDMMYY>-quickpizza-<label>-<vus>vus-<duration>-<hardware>.gz.

The label names the collector configuration under test. It falls back to $CONFIG.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("label", args[0])
			}
			return runBenchmark(cmd, v)
		},
	}

	f := cmd.Flags()
	f.String("label", "", "configuration label (env CONFIG)")
	f.String("base-url", runner.DefaultBaseURL, "QuickPizza base URL")
	f.String("token", runner.DefaultToken, "QuickPizza API token")
	f.Int("vus", runner.DefaultVUs, "number of virtual users")
	f.Duration("duration", runner.DefaultDuration, "run duration")
	f.Duration("timeout", runner.DefaultRequestTimeout, "per-request timeout")
	f.Duration("think-time", 0, "pause between iterations of one virtual user")
	f.String("hardware", runid.DefaultHardware, "hardware tag recorded in the file name")
	f.String("out-dir", ".", "directory for the result file")
	f.String("otlp-endpoint", "", "export client spans to this OTLP/HTTP endpoint")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run")
	f.String("history", "", "run history database (default is $HOME/.quickbench/history.db)")
	f.Bool("no-history", false, "do not record the run in the history database")
	f.Bool("tui", false, "show the live dashboard instead of the progress line")

	def := runner.DefaultRestrictions()
	f.Int("max-calories", def.MaxCaloriesPerSlice, "maxCaloriesPerSlice restriction")
	f.Bool("vegetarian", def.MustBeVegetarian, "mustBeVegetarian restriction")
	f.StringSlice("exclude-ingredient", def.ExcludedIngredients, "excludedIngredients restriction")
	f.StringSlice("exclude-tool", def.ExcludedTools, "excludedTools restriction")
	f.Int("max-toppings", def.MaxNumberOfToppings, "maxNumberOfToppings restriction")
	f.Int("min-toppings", def.MinNumberOfToppings, "minNumberOfToppings restriction")

	bind(v, cmd)
	return cmd
}

// runConfig assembles the immutable run configuration from flags, env and
// the config file.
func runConfig(v *viper.Viper) runner.Config {
	return runner.Config{
		BaseURL:        v.GetString("base-url"),
		Token:          v.GetString("token"),
		Label:          v.GetString("label"),
		VUs:            v.GetInt("vus"),
		Duration:       v.GetDuration("duration"),
		RequestTimeout: v.GetDuration("timeout"),
		ThinkTime:      v.GetDuration("think-time"),
		Payload: runner.Restrictions{
			MaxCaloriesPerSlice: v.GetInt("max-calories"),
			MustBeVegetarian:    v.GetBool("vegetarian"),
			ExcludedIngredients: v.GetStringSlice("exclude-ingredient"),
			ExcludedTools:       v.GetStringSlice("exclude-tool"),
			MaxNumberOfToppings: v.GetInt("max-toppings"),
			MinNumberOfToppings: v.GetInt("min-toppings"),
		},
	}
}

func runBenchmark(cmd *cobra.Command, v *viper.Viper) error {
	cfg := runConfig(v)
	tui := v.GetBool("tui")

	// zap lines would tear the alt screen apart
	if tui && !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") == "" {
		v.Set("log-level", "error")
	}
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	defer log.Sync()

	// Fail on a bad label before touching the history database.
	if err := runid.ValidateLabel(cfg.Label); err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	opts := cli.Options{
		Config:       cfg,
		Hardware:     v.GetString("hardware"),
		OutDir:       v.GetString("out-dir"),
		OTLPEndpoint: v.GetString("otlp-endpoint"),
		MetricsAddr:  v.GetString("metrics-addr"),
		TUI:          tui,
		Out:          cmd.OutOrStdout(),
		Log:          log,
	}

	if !v.GetBool("no-history") {
		store, err := openHistory(v.GetString("history"))
		if err != nil {
			log.Warnw("run history unavailable, continuing without it", "error", err)
		} else {
			defer store.Close()
			opts.History = store
		}
	}

	_, err = cli.Run(ctx, opts)
	return err
}

func openHistory(path string) (*storage.Store, error) {
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.Open(filepath.Clean(path))
}

// --- Dummy ---

func newDummyCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dummy",
		Short: "Run a mock QuickPizza server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(v)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signalContext(cmd)
			defer stop()

			f := cmd.Flags()
			port, _ := f.GetInt("port")
			status, _ := f.GetInt("status")
			failRate, _ := f.GetFloat64("fail-rate")
			latency, _ := f.GetDuration("latency")
			jitter, _ := f.GetDuration("jitter")
			token, _ := f.GetString("token")

			return dummy.Start(ctx, dummy.ServerConfig{
				Port:     port,
				Status:   status,
				FailRate: failRate,
				Latency:  latency,
				Jitter:   jitter,
				Token:    token,
			}, log)
		},
	}
	cmd.Flags().IntP("port", "p", 3333, "port to listen on")
	cmd.Flags().Int("status", 0, "answer every request with this status code")
	cmd.Flags().Float64("fail-rate", 0, "share of requests answered with 500 (0-1)")
	cmd.Flags().Duration("latency", 0, "added response latency")
	cmd.Flags().Duration("jitter", 0, "random extra latency up to this value")
	cmd.Flags().String("token", "", "require this API token")
	return cmd
}
