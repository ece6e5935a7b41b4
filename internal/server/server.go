package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeusync/tilestream/internal/core/observability/log"
	"github.com/zeusync/tilestream/internal/core/stream"
	"github.com/zeusync/tilestream/internal/core/systems/physics"
	"github.com/zeusync/tilestream/internal/core/systems/physics/space"
	"github.com/zeusync/tilestream/internal/transport/observer"
)

// Server owns the streaming engine: a single goroutine ticks it at a fixed
// rate with the position from a ViewerSource, while observers watch over
// HTTP.
type Server struct {
	engine *stream.Engine
	space  *space.Space
	hub    *observer.Hub
	viewer ViewerSource

	httpServer *http.Server
	listener   net.Listener

	running int32 // atomic bool
	stopped int32 // atomic bool
	closed  int32 // atomic bool

	ticks     atomic.Uint64
	mutations atomic.Uint64
	position  atomic.Pointer[physics.Vec3]

	config Config
	logger log.Log

	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

type Config struct {
	ListenAddr   string
	TickInterval time.Duration
	// Clearance keeps the reported viewer this far above the terrain.
	Clearance       float64
	ShutdownTimeout time.Duration
}

func DefaultServerConfig() Config {
	return Config{
		ListenAddr:      "127.0.0.1:8080",
		TickInterval:    time.Second / 30,
		Clearance:       2,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Stats is a snapshot of server and engine state.
type Stats struct {
	Running   bool         `json:"running"`
	Ticks     uint64       `json:"ticks"`
	Mutations uint64       `json:"mutations"`
	Viewer    physics.Vec3 `json:"viewer"`
	Engine    stream.Stats `json:"engine"`
	Bodies    int          `json:"bodies"`
	Observers int          `json:"observers"`
}

// NewServer wires the parts together. space and hub may be nil.
func NewServer(config Config, engine *stream.Engine, sp *space.Space, hub *observer.Hub, viewer ViewerSource, logger log.Log) (*Server, error) {
	if engine == nil || viewer == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("engine and viewer source are required"))
	}
	if config.TickInterval <= 0 {
		return nil, errors.Join(ErrInvalidConfig, errors.New("tick interval must be positive"))
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultServerConfig().ShutdownTimeout
	}
	if logger == nil {
		logger = log.Provide()
	}

	s := &Server{
		engine:   engine,
		space:    sp,
		hub:      hub,
		viewer:   viewer,
		config:   config,
		logger:   logger.With(log.String("component", "server")),
		stopChan: make(chan struct{}),
	}
	s.position.Store(&physics.Vec3{})

	s.logger.Info("Server created",
		log.String("listen_addr", config.ListenAddr),
		log.Duration("tick_interval", config.TickInterval))
	return s, nil
}

// Start listens, then runs the tick loop until Stop or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	// Stop closes the hub and the stop channel for good.
	if atomic.LoadInt32(&s.stopped) == 1 {
		return ErrServerStopped
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	s.logger.Info("Starting server")

	if s.config.ListenAddr != "" {
		ln, err := net.Listen("tcp", s.config.ListenAddr)
		if err != nil {
			atomic.StoreInt32(&s.running, 0)
			s.logger.Error("Failed to create listener", log.Error(err))
			return errors.Join(ErrListenerFailed, err)
		}
		s.listener = ln
		s.httpServer = &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}

		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server failed", log.Error(err))
			}
		}()
		s.logger.Info("Server listening", log.String("addr", ln.Addr().String()))
	}

	if s.hub != nil {
		if err := s.hub.Start(); err != nil {
			s.logger.Warn("Observer hub not started", log.Error(err))
		}
	}

	s.workerGroup.Add(1)
	go func() {
		defer s.workerGroup.Done()
		s.tickLoop(ctx)
	}()

	s.logger.Info("Server started successfully")
	return nil
}

func (s *Server) tickLoop(ctx context.Context) {
	s.logger.Debug("Tick loop started")
	defer s.logger.Debug("Tick loop stopped")

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		}
	}
}

// Tick advances the engine once. It must only be called from the goroutine
// that owns the engine: the tick loop once Start has run.
func (s *Server) Tick() stream.Action {
	pos := *s.position.Load()
	if p, ok := s.viewer.Viewer(); ok {
		pos = p
	}
	if s.space != nil {
		pos = s.space.Ground(pos, s.config.Clearance)
	}
	s.position.Store(&pos)

	action := s.engine.Update(pos)
	s.ticks.Add(1)
	if action.Mutates() {
		s.mutations.Add(1)
		s.logger.Debug("Engine step", log.Stringer("action", action))
	}
	return action
}

// Addr is the bound HTTP address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}

	s.logger.Info("Stopping server")
	atomic.StoreInt32(&s.stopped, 1)
	close(s.stopChan)

	if s.hub != nil {
		_ = s.hub.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown incomplete", log.Error(err))
		}
		cancel()
	}

	s.workerGroup.Wait()
	s.logger.Info("Server stopped")
	return nil
}

// Close stops the server if needed and releases the engine.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.logger.Info("Closing server")
	if atomic.LoadInt32(&s.running) == 1 {
		_ = s.Stop()
	}
	if s.hub != nil {
		_ = s.hub.Close()
	}
	err := s.engine.Close()

	s.logger.Info("Server closed")
	return err
}

func (s *Server) Stats() Stats {
	st := Stats{
		Running:   atomic.LoadInt32(&s.running) == 1,
		Ticks:     s.ticks.Load(),
		Mutations: s.mutations.Load(),
		Viewer:    *s.position.Load(),
		Engine:    s.engine.Stats(),
	}
	if s.space != nil {
		st.Bodies = s.space.Len()
	}
	if s.hub != nil {
		st.Observers = s.hub.Clients()
	}
	return st
}
