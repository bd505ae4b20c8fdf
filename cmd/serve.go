package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maxvaer/apiprobe/internal/server"
	"github.com/maxvaer/apiprobe/internal/store"
)

var serveOpts struct {
	listen      string
	dbPath      string
	corsOrigins []string
	maxScanTime time.Duration
	logLevel    string
}

var serveCmd = &cobra.Command{
	Use:   "serve [flags]",
	Short: "Run the scan HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logrus.New()
		log.SetOutput(os.Stderr)
		lvl, err := logrus.ParseLevel(serveOpts.logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		log.SetLevel(lvl)

		cfg := server.Config{
			AllowOrigins: serveOpts.corsOrigins,
			MaxScanTime:  serveOpts.maxScanTime,
			Logger:       log,
		}
		if serveOpts.dbPath != "" {
			db, err := store.Open(serveOpts.dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			cfg.DB = db
		}

		srv := server.New(cfg)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		go func() {
			<-ctx.Done()
			if err := srv.Shutdown(); err != nil {
				log.Errorf("shutting down: %v", err)
			}
		}()
		return srv.Listen(serveOpts.listen)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.listen, "listen", ":8080", "Address to listen on")
	f.StringVar(&serveOpts.dbPath, "db", "", "SQLite file for scan history (empty disables /scans)")
	f.StringSliceVar(&serveOpts.corsOrigins, "cors-origin", nil, "Allowed CORS origins")
	f.DurationVar(&serveOpts.maxScanTime, "max-scan-time", 10*time.Minute, "Upper bound on one API scan")
	f.StringVar(&serveOpts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
}
