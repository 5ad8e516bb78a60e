package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessellate/canvasd/auth"
	"github.com/tessellate/canvasd/config"
	"github.com/tessellate/canvasd/db"
	"github.com/tessellate/canvasd/errors"
	"github.com/tessellate/canvasd/hub"
	"github.com/tessellate/canvasd/logger"
	"github.com/tessellate/canvasd/store"
)

// ServeCmd starts the realtime WebSocket server.
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the realtime collaboration server",
	Long: `Start the canvasd WebSocket server. Clients connect to /ws with a
canvasId query parameter and a bearer token; /healthz answers liveness
probes.`,
	RunE: runServe,
}

var (
	serveAddr    string
	serveDBPath  string
	serveDevMode bool
)

func init() {
	ServeCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
	ServeCmd.Flags().StringVar(&serveDBPath, "db", "", "SQLite database path (overrides config)")
	ServeCmd.Flags().BoolVar(&serveDevMode, "dev", false, "Allow ?userId= admission without a token")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveDBPath != "" {
		cfg.DB.Path = serveDBPath
	}
	if serveDevMode {
		cfg.Server.DevMode = true
	}

	if err := logger.Initialize(cfg.Log.JSON); err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	log := logger.Logger

	if cfg.Auth.JWTSecret == "" && !cfg.Server.DevMode {
		return errors.New("auth.jwt_secret is required outside dev mode (set CANVASD_AUTH_JWT_SECRET)")
	}
	if cfg.Server.DevMode {
		log.Warnw("Development mode enabled, unauthenticated userId admission is allowed")
	}

	database, err := db.Open(cfg.DB.Path, log)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "apply migrations")
	}

	st := store.New(database)
	cache := store.NewCache(st, cfg.Cache.CanvasTTL, cfg.Cache.ShapesTTL)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	h := hub.New(cfg.Hub, cfg.Server.DevMode, st, cache, verifier, log)
	h.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Infow("canvasd listening",
			"addr", cfg.Server.Addr,
			"db", cfg.DB.Path,
			"dev_mode", cfg.Server.DevMode,
		)
		errChan <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server error")
		}
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig.String())
	}

	h.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), hub.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("HTTP shutdown did not complete cleanly", "error", err)
	}

	log.Infow("canvasd stopped")
	return nil
}
