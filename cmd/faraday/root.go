package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arthur-debert/faraday/faraday"
	"github.com/arthur-debert/faraday/internal/config"
	"github.com/arthur-debert/faraday/internal/logging"
	"github.com/arthur-debert/faraday/internal/telemetry"
)

// cliApp holds the configuration and the lazily opened service shared by
// all commands of one invocation.
type cliApp struct {
	v       *viper.Viper
	cfg     config.Config
	output  string
	user    string
	svc     *faraday.Service
	metrics *telemetry.Metrics
	logFile io.Closer
}

func newRootCmd() *cobra.Command {
	app := &cliApp{v: config.New()}

	rootCmd := &cobra.Command{
		Use:   "faraday",
		Short: "Faraday Shield Analyser",
		Long: `Faraday Shield Analyser stores shielding measurement experiments and derives
shielding effectiveness (reference minus measurement) for every location column.

Configuration Sources (in order of precedence):
1. Command line flags
2. Environment variables (FARADAY_*)
3. Configuration file (FARADAY_CONFIG, ./faraday.yaml, ~/.faraday/faraday.yaml
   or faraday.yaml in the data directory)
4. Defaults

Examples:
  # Import a spreadsheet and list experiments
  faraday import chamber-run.xlsx
  faraday list

  # Serve the HTTP API
  faraday serve --listen 127.0.0.1:8000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(app.v)
			if err != nil {
				return NewConfigError(cmd.Name(), err.Error(),
					"Check the file named by FARADAY_CONFIG or ./faraday.yaml",
					"Run 'faraday config show' with a valid configuration to see the effective settings")
			}
			app.cfg = cfg
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("data-dir", "", "data directory (default: platform application data directory)")
	flags.String("experiments-file", "", "experiments document, relative to the data directory")
	flags.String("credentials-file", "", "credentials document, relative to the data directory")
	flags.String("log-level", "", "log level: debug|info|warn|error")
	flags.Bool("log-stderr", false, "also write logs to stderr")
	flags.StringVarP(&app.output, "output", "o", "table", "output format: table|json|yaml")
	flags.StringVar(&app.user, "user", "", "name recorded as uploader or modifier (default: $USER)")

	for key, flag := range map[string]string{
		"data_dir":         "data-dir",
		"experiments_file": "experiments-file",
		"credentials_file": "credentials-file",
		"log.level":        "log-level",
		"log.stderr":       "log-stderr",
	} {
		_ = app.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		newInitCmd(app),
		newServeCmd(app),
		newListCmd(app),
		newShowCmd(app),
		newNewCmd(app),
		newImportCmd(app),
		newExportCmd(app),
		newDeleteCmd(app),
		newRederiveCmd(app),
		newBackupCmd(app),
		newAuthCmd(app),
		newConfigCmd(app),
	)
	return rootCmd
}

// service opens the data directory on first use
func (app *cliApp) service(ctx context.Context) (*faraday.Service, error) {
	if app.svc != nil {
		return app.svc, nil
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:    app.cfg.DataDir,
		Level:  app.cfg.Log.Level,
		Stderr: app.cfg.Log.Stderr,
	})
	if err != nil {
		return nil, NewStoreError("open data directory", err,
			fmt.Sprintf("Check that %s is writable", app.cfg.DataDir))
	}
	app.logFile = logFile

	metrics, err := telemetry.New(ctx, app.cfg.Telemetry)
	if err != nil {
		return nil, NewConfigError("start telemetry", err.Error(),
			"Set telemetry.enabled to false or fix telemetry.endpoint")
	}
	app.metrics = metrics

	svc, err := faraday.Open(ctx, faraday.Options{
		DataDir:         app.cfg.DataDir,
		ExperimentsPath: app.cfg.ExperimentsPath(),
		CredentialsPath: app.cfg.CredentialsPath(),
		Logger:          logger,
		Metrics:         metrics,
	})
	if err != nil {
		return nil, NewStoreError("open store", err,
			fmt.Sprintf("Inspect %s for damage; it is never overwritten when unreadable", app.cfg.ExperimentsPath()))
	}
	app.svc = svc
	return svc, nil
}

// withService opens the service for the duration of one command
func (app *cliApp) withService(fn func(cmd *cobra.Command, args []string, svc *faraday.Service) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		svc, err := app.service(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := app.close(context.Background()); err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, args, svc)
	}
}

func (app *cliApp) close(ctx context.Context) error {
	var firstErr error
	if app.svc != nil {
		firstErr = app.svc.Close()
		app.svc = nil
	}
	if app.metrics != nil {
		if err := app.metrics.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		app.metrics = nil
	}
	if app.logFile != nil {
		_ = app.logFile.Close()
		app.logFile = nil
	}
	return firstErr
}

// actor is the name recorded on created and modified experiments
func (app *cliApp) actor() string {
	if app.user != "" {
		return app.user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "cli"
}
