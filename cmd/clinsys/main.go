package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinsys/clinsys/internal/config"
	"github.com/clinsys/clinsys/internal/domain/appointment"
	"github.com/clinsys/clinsys/internal/domain/evolution"
	"github.com/clinsys/clinsys/internal/domain/patient"
	"github.com/clinsys/clinsys/internal/platform/gateway"
	"github.com/clinsys/clinsys/internal/platform/session"
	"github.com/clinsys/clinsys/internal/web"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:           "clinsys",
		Short:         "Clinic records front-end",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadEnvFile(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file first")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loginCmd(), logoutCmd(), whoamiCmd())
	rootCmd.AddCommand(patientsCmd(), appointmentsCmd(), evolutionsCmd())
	return rootCmd
}

// app holds everything a command needs. Close releases the session store.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	store        *session.LevelStore
	sessions     *session.Manager
	api          *gateway.Client
	patients     *patient.Service
	appointments *appointment.Service
	evolutions   *evolution.Service
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	return logger.Level(cfg.Level())
}

func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	store, err := session.OpenLevelStore(cfg.SessionPath)
	if err != nil {
		return nil, err
	}
	sessions := session.NewManager(store.WithLogger(logger), logger)
	api := gateway.NewClient(cfg.APIBaseURL, sessions,
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithLogger(logger),
	)

	patients := patient.NewService(patient.NewPatientRepoAPI(api), logger)
	return &app{
		cfg:          cfg,
		logger:       logger,
		store:        store,
		sessions:     sessions,
		api:          api,
		patients:     patients,
		appointments: appointment.NewService(appointment.NewAppointmentRepoAPI(api), patients, logger),
		evolutions:   evolution.NewService(evolution.NewEvolutionRepoAPI(api), patients, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp runs fn with a bootstrapped app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := bootstrap(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web front-end on localhost",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				srv, err := web.New(a.cfg, a.sessions, a.api, a.logger)
				if err != nil {
					return fmt.Errorf("build server: %w", err)
				}
				return srv.Run(ctx)
			})
		},
	}
}
