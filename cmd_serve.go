package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inspection-chat/handlers"
	"inspection-chat/session"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the inspection chat HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				a.cfg.Server.Port = port
			}
			return runServe(cmd.Context(), a)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(ctx context.Context, a *app) error {
	svc, err := a.reportService()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ar, err := a.openArchive(ctx)
	if err != nil {
		return err
	}
	deps := session.Deps{Service: svc, Logger: a.logger}
	var store handlers.ReportStore
	if ar != nil {
		defer ar.Close()
		deps.Archive = ar.workflows
		store = ar.workflows
	}

	monitor := a.reachability()
	if err := monitor.Start(a.cfg.Reachability.Interval); err != nil {
		return err
	}
	defer monitor.Stop()
	deps.Reachability = monitor

	manager := session.NewManager(a.sessionConfig(), deps)

	if a.logger.GetLevel() > log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(
		handlers.NewSessionHandler(manager, store, a.logger),
		handlers.NewReportHandler(store, a.logger),
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("starting server", "port", a.cfg.Server.Port, "provider", a.cfg.Backend.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down", "sessions", manager.Len())
		// Closing sessions ends their event streams so Shutdown can drain
		manager.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
