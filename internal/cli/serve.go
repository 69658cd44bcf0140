package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/soimon/notion-todoist/internal/engine"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Interval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run passes on an interval and expose a control API",
		Long: `Run a pass immediately and then on every interval, until interrupted.

The HTTP API exposes:
  GET  /healthz          liveness
  GET  /status           boundary, pause flag and recent passes
  POST /sync?dry_run=1   run a pass now
  POST /pause            pause sync
  POST /resume           resume sync

Example:
  notion-todoist serve --addr 127.0.0.1:8080 --interval 10m`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides serve.addr)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pass interval (overrides sync.interval)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	a, err := loadApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	// The lock is held for the lifetime of the server so one-shot syncs
	// cannot run next to it.
	lock, err := a.lock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	addr := a.cfg.Serve.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	interval := a.cfg.Sync.Interval
	if opts.Interval > 0 {
		interval = opts.Interval
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(a, opts.RootOptions)
	if err != nil {
		return err
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.logger.Info("server starting", "addr", addr, "interval", interval)
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s, syncing every %s.\n", addr, interval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		srv.loop(gctx, interval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	a.logger.Info("server stopped gracefully")
	return nil
}

// server runs passes on a timer and on request. At most one pass runs at
// a time; triggers arriving while one is in flight are dropped.
//
// One engine serves every pass so the Target state fetched by the first
// pass is merged incrementally by the later ones.
type server struct {
	app    *app
	engine *engine.Engine
	router *gin.Engine
	busy   sync.Mutex
}

func newServer(a *app, opts *RootOptions) (*server, error) {
	eng, err := a.newEngine(opts, nil, false)
	if err != nil {
		return nil, err
	}
	s := &server{app: a, engine: eng}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(a.logger))

	router.GET("/healthz", s.handleHealth)
	router.GET("/status", s.handleStatus)
	router.POST("/sync", s.handleSync)
	router.POST("/pause", s.handlePause(true))
	router.POST("/resume", s.handlePause(false))

	s.router = router
	return s, nil
}

var errBusy = errors.New("a pass is already running")

// trigger runs one pass unless one is already running. Passes are not
// cancellable: the pass runs to completion even when ctx is done.
func (s *server) trigger(ctx context.Context, dryRun bool) (*SyncSummary, error) {
	if !s.busy.TryLock() {
		return nil, errBusy
	}
	defer s.busy.Unlock()

	r := s.app.newRunner(s.engine)
	r.dryRun = dryRun
	res, err := r.run(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	summary := summarize(res)
	return &summary, nil
}

func (s *server) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.trigger(ctx, false)
		switch {
		case errors.Is(err, errBusy):
			s.app.logger.Debug("pass still running, tick skipped")
		case err != nil && ctx.Err() == nil:
			s.app.logger.Error("scheduled pass failed", "error", err)
		case summary != nil:
			s.app.logger.Info(summary.Line())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, okEnvelope(gin.H{"status": "ok"}))
}

func (s *server) handleStatus(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit < 0 {
		respondError(c, http.StatusBadRequest, ErrCodeConfig, "invalid limit")
		return
	}
	st, err := s.app.status(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, ErrCodeState, err.Error())
		return
	}
	c.JSON(http.StatusOK, okEnvelope(st))
}

func (s *server) handleSync(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	summary, err := s.trigger(c.Request.Context(), dryRun)
	switch {
	case errors.Is(err, errBusy):
		respondError(c, http.StatusConflict, ErrCodeLocked, err.Error())
		return
	case err != nil:
		status := http.StatusInternalServerError
		if engine.IsTransient(err) {
			status = http.StatusServiceUnavailable
		}
		respondError(c, status, ErrCodePass, passExitError(err).Error())
		return
	}
	c.JSON(http.StatusOK, okEnvelope(summary))
}

func (s *server) handlePause(paused bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.app.state.SetPaused(c.Request.Context(), paused); err != nil {
			respondError(c, http.StatusInternalServerError, ErrCodeState, err.Error())
			return
		}
		s.app.logger.Info("pause flag set", "paused", paused)
		c.JSON(http.StatusOK, okEnvelope(gin.H{"paused": paused}))
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, errorEnvelope(code, msg, nil))
}

// requestLogger logs each request through slog instead of gin's writer.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
