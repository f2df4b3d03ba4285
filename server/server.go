package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/quizserver/auth"
	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/game"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/rpc"
	"github.com/wfunc/quizserver/services"
	"github.com/wfunc/quizserver/session"
)

type Options struct {
	HTTPAddress     string
	Heartbeat       time.Duration
	ShutdownTimeout time.Duration
}

// Dependencies 由 main 组装好后注入
type Dependencies struct {
	Games    *game.Service
	Bus      broadcast.Bus
	Verifier *auth.Verifier
	Scores   *services.ScoreService
	Monitor  *monitor.Monitor
	// RPC is optional; tests run without it.
	RPC *rpc.Server
	Log *zap.SugaredLogger
}

type GameServer struct {
	opts     Options
	upgrader websocket.Upgrader
	games    *game.Service
	bus      broadcast.Bus
	verifier *auth.Verifier
	scores   *services.ScoreService
	monitor  *monitor.Monitor
	rpc      *rpc.Server
	sessions *session.Manager
	log      *zap.SugaredLogger

	engine       *gin.Engine
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(opts Options, deps Dependencies) *GameServer {
	s := &GameServer{
		opts:         opts,
		games:        deps.Games,
		bus:          deps.Bus,
		verifier:     deps.Verifier,
		scores:       deps.Scores,
		monitor:      deps.Monitor,
		rpc:          deps.RPC,
		sessions:     session.NewManager(),
		log:          deps.Log,
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.engine = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddress,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *GameServer) Handler() http.Handler {
	return s.engine
}

func (s *GameServer) Sessions() *session.Manager {
	return s.sessions
}

// Run serves HTTP and gRPC until ctx is cancelled or either listener fails.
func (s *GameServer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infof("Game server listening on %s", s.opts.HTTPAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.rpc != nil {
		g.Go(s.rpc.Serve)
		s.rpc.MarkServing()
	}
	g.Go(func() error {
		<-ctx.Done()
		timeout := s.opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops accepting traffic, closes every socket and stops the rooms.
func (s *GameServer) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.rpc != nil {
			s.rpc.Stop()
		}
		err = s.httpServer.Shutdown(ctx)
		s.sessions.CloseAll()
		s.games.Close()
		s.log.Info("Game server stopped")
	})
	return err
}
