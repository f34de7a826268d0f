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

	"github.com/awattprice/awattprice/internal/app"
	"github.com/awattprice/awattprice/internal/config"
	"github.com/awattprice/awattprice/internal/uiapi"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	var cfgFile string
	var port int
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "awattpriced",
		Short: "AWattPrice HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}

			a, err := app.New(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           uiapi.NewServer(a.Planner, a.Store, a.Registry, a.Logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errChan := make(chan error, 1)
			go func() {
				a.Logger.WithFields(logrus.Fields{
					"port":     cfg.Server.Port,
					"database": cfg.Database.Path,
				}).Info("AWattPrice server starting")
				errChan <- srv.ListenAndServe()
			}()

			select {
			case err := <-errChan:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
				a.Logger.Info("Shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "Database path")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
