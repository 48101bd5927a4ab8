package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/monocle-dev/crons/db"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/checkins"
	"github.com/monocle-dev/crons/internal/handlers"
	"github.com/monocle-dev/crons/internal/router"
	"github.com/monocle-dev/crons/internal/scheduler"
	"github.com/monocle-dev/crons/internal/store"
	"github.com/monocle-dev/crons/internal/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ServeCmd() *cobra.Command {
	var (
		migrate  bool
		noSweep  bool
		shutdown time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the missed check-in sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if err := auth.InitJWTSecret(a.cfg.JWTSecret); err != nil {
				return err
			}

			if migrate {
				if err := db.MigrateDatabase(); err != nil {
					return err
				}
			}

			if a.cfg.Env != "development" {
				gin.SetMode(gin.ReleaseMode)
			}

			handlers.DSNScheme = a.cfg.CheckIns.DSNScheme
			handlers.DSNHost = a.cfg.CheckIns.DSNHost
			handlers.CookieDomain = os.Getenv("DOMAIN")

			origins := a.cfg.AllowedOrigins
			if len(origins) == 0 {
				origins = types.AllowedOrigins
			}
			types.AllowedOrigins = origins

			checkInStore := store.New(db.DB)
			engine := checkins.NewEngine(checkInStore, checkins.WithLogger(a.log.Named("checkins")))
			query := checkins.NewQueryService(checkInStore, a.cfg.CheckIns.DefaultPageSize, a.cfg.CheckIns.MaxPageSize)

			if !noSweep {
				scheduler.Initialize(engine, checkInStore,
					scheduler.WithInterval(a.cfg.Sweeper.Interval),
					scheduler.WithBatchSize(a.cfg.Sweeper.BatchSize),
					scheduler.WithLogger(a.log.Named("sweeper")),
				)
				defer scheduler.Shutdown()
			}

			srv := &http.Server{
				Addr: ":" + a.cfg.Port,
				Handler: router.NewRouter(router.Options{
					Engine:         engine,
					Query:          query,
					AllowedOrigins: origins,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("Listening", zap.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("Shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdown)
			defer cancel()

			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run database migrations before serving")
	cmd.Flags().BoolVar(&noSweep, "no-sweep", false, "Do not run the missed check-in sweeper in this process")
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")

	return cmd
}
