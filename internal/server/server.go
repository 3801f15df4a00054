// Package server exposes stored reports, background loads, run history and
// the log file over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/store"
	"github.com/franz/catstats/internal/util"
	"github.com/gin-gonic/gin"
	"github.com/sourcegraph/conc/panics"
	"github.com/spf13/afero"
)

// ErrLoadInProgress is returned when a load is requested while one runs
var ErrLoadInProgress = errors.New("a load is already in progress")

// ReportRunner computes a report for a filter. *query.Runner implements it.
type ReportRunner interface {
	Run(ctx context.Context, f query.Filter) (*query.Result, error)
}

// Loader ingests periods. *ingest.Orchestrator implements it.
type Loader interface {
	Run(ctx context.Context, periods []ingest.Period, opts ingest.RunOptions) (*ingest.Result, error)
}

// RunLister lists recent ingest runs. *store.Store implements it.
type RunLister interface {
	RecentRuns(limit int) ([]*store.Run, error)
}

// Config holds server dependencies
type Config struct {
	Reports ReportRunner
	Loader  Loader
	Runs    RunLister

	// LockPath is checked before a load is accepted ("" = no check)
	LockPath string

	// Fs and LogFile back the log endpoint ("" = endpoint returns 404)
	Fs      afero.Fs
	LogFile string

	FirstYear   int
	LockTimeout time.Duration

	// OnLoadDone is called when a background load finishes
	OnLoadDone func(*ingest.Result, error)

	Now func() time.Time
}

// Server is the HTTP surface
type Server struct {
	router *gin.Engine
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	loading bool
	current string
}

// New creates a server. Background loads run under a context that is
// cancelled by Close.
func New(cfg Config) *Server {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router: gin.New(),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/healthz", s.healthz)
		api.GET("/options", s.options)
		api.GET("/report", s.report)
		api.POST("/load", s.load)
		api.GET("/runs", s.runs)
		api.GET("/logs", s.logs)
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.InfoLog("Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	return err
}

// Close cancels background loads and waits for them to stop
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Loading reports whether a background load is running, and its periods
func (s *Server) Loading() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading, s.current
}

// startLoad runs a load in the background. It fails with ErrLoadInProgress
// when this server already runs one, or util.ErrLocked when another process
// holds the storage lock.
func (s *Server) startLoad(periods []ingest.Period, full bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading {
		return ErrLoadInProgress
	}
	if err := s.checkLock(); err != nil {
		return err
	}

	s.loading = true
	s.current = ingest.Labels(periods)
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.loading = false
			s.current = ""
			s.mu.Unlock()
		}()

		var res *ingest.Result
		var err error
		recovered := panics.Try(func() {
			res, err = s.cfg.Loader.Run(s.ctx, periods, ingest.RunOptions{
				Wipe:        full,
				LockTimeout: s.cfg.LockTimeout,
			})
		})
		if recovered != nil {
			err = recovered.AsError()
		}

		if err != nil {
			util.ErrorLog("Background load of %s failed: %v", ingest.Labels(periods), err)
		} else {
			util.SuccessLog("Background load of %s finished: %s", ingest.Labels(periods), res.Status)
		}
		if s.cfg.OnLoadDone != nil {
			s.cfg.OnLoadDone(res, err)
		}
	}()

	return nil
}

func (s *Server) checkLock() error {
	if s.cfg.LockPath == "" {
		return nil
	}
	lock := util.NewFileLock(s.cfg.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return util.ErrLocked
	}
	return lock.Unlock()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		util.DebugLog("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}
