package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"inspection-chat/config"
	"inspection-chat/logging"
	"inspection-chat/services"
	"inspection-chat/session"
	"inspection-chat/workflows"

	"github.com/charmbracelet/log"
	"github.com/dbos-inc/dbos-transact-golang/dbos"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// app carries what every subcommand loads before it runs
type app struct {
	configPath string
	cfg        *config.Config
	logger     *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "inspector",
		Short:         "AI home inspection chat",
		Long:          "Generates home inspection reports from categorized photos and answers follow-up questions about them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to inspector.yaml")

	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newChatCmd(a))
	cmd.AddCommand(newReportsCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	return cmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	log.SetDefault(logger)
	return nil
}

func (a *app) sessionConfig() session.Config {
	return session.Config{
		SystemPrompt:   a.cfg.Session.SystemPrompt,
		TickInterval:   a.cfg.Session.TickInterval,
		RequestTimeout: a.cfg.Session.RequestTimeout,
	}
}

// reportService builds the adapter for the configured provider
func (a *app) reportService() (session.ReportService, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := a.cfg.Session.RequestTimeout
	switch a.cfg.Backend.Provider {
	case config.ProviderAnthropic:
		return services.NewAnthropicService(a.cfg.Anthropic.APIKey, a.cfg.Anthropic.Model, timeout), nil
	case config.ProviderVLLM:
		return services.NewVLLMService(a.cfg.VLLM.BaseURL, a.cfg.VLLM.Model, timeout), nil
	default:
		return services.NewBackendService(a.cfg.Backend.BaseURL, timeout), nil
	}
}

func (a *app) reachability() *services.ReachabilityMonitor {
	return services.NewReachabilityMonitor(a.cfg.Reachability.ProbeURL, a.cfg.Reachability.Interval, a.logger)
}

// archive is an open report archive with DBOS launched
type archive struct {
	db        *sql.DB
	dbosCtx   dbos.DBOSContext
	workflows *workflows.ReportWorkflows
}

// openArchive connects the report archive. It returns nil when database.url is unset
func (a *app) openArchive(ctx context.Context) (*archive, error) {
	dbURL := a.cfg.Database.URL
	if dbURL == "" {
		return nil, nil
	}

	// Connect to PostgreSQL for app data
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	a.logger.Info("connected to PostgreSQL database")

	wf := workflows.NewReportWorkflows(db)
	if err := wf.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize DBOS context for durable workflows
	dbosCtx, err := dbos.NewDBOSContext(ctx, dbos.Config{
		DatabaseURL: dbURL,
		AppName:     "inspection-chat",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	// Register workflows with DBOS (MUST be before Launch)
	wf.Register(dbosCtx)

	// Launch DBOS (starts workflow recovery)
	if err := dbos.Launch(dbosCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}
	a.logger.Info("DBOS initialized, report archive enabled")

	return &archive{db: db, dbosCtx: dbosCtx, workflows: wf}, nil
}

func (ar *archive) Close() {
	dbos.Shutdown(ar.dbosCtx, 5*time.Second)
	ar.db.Close()
}

// requireArchive opens the archive for commands that cannot run without it
func (a *app) requireArchive(ctx context.Context) (*archive, error) {
	ar, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if ar == nil {
		return nil, fmt.Errorf("report archive is disabled: set database.url or INSPECTOR_DATABASE_URL")
	}
	return ar, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
