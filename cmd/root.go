// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/scalpel-heal/internal/config"
	"github.com/xkilldash9x/scalpel-heal/internal/observability"
)

// rootOptions is the state shared by all subcommands of one command tree.
type rootOptions struct {
	cfgFile string
	verbose bool
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree. Each call is independent, which keeps flags
// from leaking between executions.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "scalpel-heal",
		Short:         "Resolves UI element selectors and heals the ones that no longer match.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			observability.InitializeLogger(cfg.Logger())
			if opts.verbose {
				observability.SetLevel(zapcore.DebugLevel)
			}
			observability.GetLogger().Debug("Starting scalpel-heal", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newResolveCmd(opts),
		newClickCmd(opts),
		newFillCmd(opts),
		newNavigateCmd(opts),
		newCompareCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Command aborted.")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	observability.Sync()
	return err
}

// load reads the config file and environment, applies flag overrides and validates.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if o.cfgFile != "" {
		path, err := config.ExpandPath(o.cfgFile)
		if err != nil {
			return nil, err
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}

	o.v = v
	return config.NewConfigFromViper(v)
}

// flagKeys maps command flags onto configuration keys.
var flagKeys = map[string]string{
	"max-attempts": "healing.max_attempts",
	"page":         "healing.default_page",
	"skip-missing": "healing.skip_missing_fields",
	"timeout":      "resolver.timeout",
	"headless":     "browser.headless",
	"event-log":    "telemetry.event_log",
	"database-url": "database.url",
	"testid-attr":  "healing.test_id_attribute",
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}
	return nil
}
