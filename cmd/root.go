// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/service"
)

type contextKey string

const appKey contextKey = "app"

// envFile is loaded before configuration when present.
const envFile = ".env"

// newComponentFactory is swapped in tests to avoid real providers and browsers.
var newComponentFactory = func() service.ComponentFactory {
	return service.NewComponentFactory(nil)
}

// rootState is shared by the root command and its subcommands for one execution.
type rootState struct {
	cfgFile string
	debug   bool
	app     *service.AppContext
}

// NewRootCommand builds a fresh command tree. Each call returns independent flag state.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *rootState) {
	state := &rootState{}
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "pilot",
		Short: "Pilot drives a browser toward a natural-language goal.",
		Long: `Pilot turns a natural-language task into a bounded sequence of browser actions,
asking a language model for the next step after every observation.

Without a subcommand, pilot runs --task once or reads tasks interactively until "exit".`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app, err := state.load(cmd)
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.task != "" {
				return runSingleTask(cmd, opts)
			}
			return runInteractive(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(`{{printf "pilot version %s\n" .Version}}`)

	cmd.PersistentFlags().StringVarP(&state.cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.pilot/config.yaml)")
	cmd.PersistentFlags().BoolVar(&state.debug, "debug", false, "enable debug logging")
	addRunFlags(cmd, opts)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd, state
}

// Execute runs the command tree with os.Args and flushes the logger afterwards.
func Execute(ctx context.Context) error {
	cmd, state := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	if state.app != nil {
		if err != nil && !errors.Is(err, context.Canceled) {
			state.app.Logger.Error("Command execution failed.", zap.Error(err))
		}
		_ = state.app.Logger.Sync()
	} else if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// load reads .env, the config file and PILOT_ environment variables, then builds the logger.
func (s *rootState) load(cmd *cobra.Command) (*service.AppContext, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	v := viper.New()
	config.SetDefaults(v)
	if err := initializeConfig(v, s.cfgFile); err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load or validate config: %w", err)
	}
	if s.debug {
		cfg.SetLoggerLevel("debug")
	}

	logger, err := observability.NewLogger(cfg.Logger(), zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Debug("Configuration loaded.", zap.String("config_file", v.ConfigFileUsed()), zap.String("version", Version))

	s.app = &service.AppContext{Config: cfg, Logger: logger}
	return s.app, nil
}

// initializeConfig points v at the config file and the PILOT_ environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// appFromContext returns the AppContext installed by the root command.
func appFromContext(ctx context.Context) (*service.AppContext, error) {
	app, ok := ctx.Value(appKey).(*service.AppContext)
	if !ok || app == nil {
		return nil, errors.New("application context not initialized")
	}
	return app, nil
}
