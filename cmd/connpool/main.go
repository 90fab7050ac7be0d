package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/config"
	"github.com/ajitpratap0/connpool/pkg/driver"
	"github.com/ajitpratap0/connpool/pkg/errors"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/observability"
	"github.com/ajitpratap0/connpool/pkg/pool"

	// Register the built-in drivers
	_ "github.com/ajitpratap0/connpool/pkg/driver/mysql"
	_ "github.com/ajitpratap0/connpool/pkg/driver/postgres"
	_ "github.com/ajitpratap0/connpool/pkg/driver/sqlconn"
)

var version = "0.1.0"

const closeTimeout = 10 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("CONNPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func buildRootCommand(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:   "connpool",
		Short: "connpool - bounded connection pool for MySQL and PostgreSQL",
		Long: `connpool runs queries and load tests through a fixed-capacity connection pool.
Settings come from a YAML file, CONNPOOL_* environment variables and flags, in
increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "Path to pool configuration YAML file")
	flags.String("driver", "", "Driver name (see 'connpool drivers')")
	flags.String("dsn", "", "Driver-native connection string")
	flags.String("name", "", "Pool name used in logs, metrics and spans")
	flags.Int("capacity", 0, "Maximum number of connections")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	_ = v.BindPFlags(flags)

	root.AddCommand(
		newVersionCommand(),
		newDriversCommand(),
		newQueryCommand(v),
		newBenchCommand(v),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connpool v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newDriversCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "List registered drivers",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := make([]driver.Info, 0)
			for _, name := range driver.Drivers() {
				if info, ok := driver.Lookup(name); ok {
					infos = append(infos, info)
				}
			}

			if asJSON {
				return writeJSON(cmd, infos)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available Drivers:")
			for _, info := range infos {
				fmt.Fprintf(out, "  - %s: %s\n", info.Name, info.Description)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print drivers as JSON")
	return cmd
}

func newQueryCommand(v *viper.Viper) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run one query through the pool and print the result",
		Long: `Acquire a lease, run a single statement on it, release it and print the
result as JSON.

Example:
  connpool query --config pool.yaml "SELECT id, name FROM users LIMIT 5"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log, err := initLogger(cfg, "query")
			if err != nil {
				return err
			}
			defer func() { _ = observability.SyncLogger(log) }()

			p, err := openPool(cfg, pool.WithLogger(log))
			if err != nil {
				return err
			}
			defer closePool(p, log)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var res *driver.Result
			err = p.With(ctx, func(l *pool.Lease) error {
				var err error
				res, err = l.Query(ctx, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Timeout for acquiring a connection and running the query")
	return cmd
}

// loadConfig reads the optional config file and overlays CONNPOOL_*
// environment variables and flags on top of it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.NewDefault()
	if path := v.GetString("config"); path != "" {
		if err := config.Load(path, cfg); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "load "+path)
		}
	}

	if v.IsSet("driver") {
		cfg.Connection.Driver = v.GetString("driver")
	}
	if v.IsSet("dsn") {
		cfg.Connection.DSN = v.GetString("dsn")
	}
	if v.IsSet("name") {
		cfg.Pool.Name = v.GetString("name")
	}
	if v.IsSet("capacity") {
		cfg.Pool.Capacity = v.GetInt("capacity")
	}
	if v.IsSet("log-level") {
		cfg.Logging.Level = v.GetString("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func initLogger(cfg *config.Config, command string) (*zap.Logger, error) {
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return logger.Component("connpool-cli").With(zap.String("command", command)), nil
}

func openPool(cfg *config.Config, opts ...pool.Option) (*pool.Pool, error) {
	connector, err := driver.Open(&cfg.Connection)
	if err != nil {
		return nil, err
	}
	return pool.New(cfg.Pool, connector, opts...)
}

func closePool(p *pool.Pool, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := p.Close(ctx); err != nil {
		log.Warn("pool did not close cleanly", zap.Error(err))
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
