package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/drstein77/priceallocator/internal/config"
	"github.com/drstein77/priceallocator/internal/controllers"
	"github.com/drstein77/priceallocator/internal/dbkeeper"
	"github.com/drstein77/priceallocator/internal/logger"
	"github.com/drstein77/priceallocator/internal/middleware"
	"github.com/drstein77/priceallocator/internal/reallocator"
	"github.com/drstein77/priceallocator/internal/storage"
	"github.com/go-chi/chi"
	"go.uber.org/zap"
)

// mx guards the fields Serve sets; Shutdown is called from the signal
// goroutine.
type Server struct {
	ctx context.Context

	mx      sync.Mutex
	srv     *http.Server
	keeper  *dbkeeper.DBKeeper
	log     *logger.Logger
	stopped bool
}

// NewServer creates a new Server instance with the provided context
func NewServer(ctx context.Context) *Server {
	server := new(Server)
	server.ctx = ctx
	server.log = logger.NewNop()
	return server
}

func (server *Server) Logger() *logger.Logger {
	server.mx.Lock()
	defer server.mx.Unlock()
	return server.log
}

// Serve wires the service together and blocks until the HTTP server stops.
func (server *Server) Serve() {
	// create and initialize a new option instance
	option := config.NewOptions()
	option.ParseFlags()

	nLogger, err := logger.NewLogger(option.LogLevel())
	if err != nil {
		log.Fatalln(err)
	}
	server.mx.Lock()
	server.log = nLogger
	server.mx.Unlock()
	defer nLogger.Sync()

	limits := option.Limits()
	if err := reallocator.ValidateLimits(limits); err != nil {
		nLogger.Error("invalid limits", zap.Error(err))
		return
	}

	// a nil keeper must stay a nil interface
	var keeper storage.Keeper
	if kp := dbkeeper.NewDBKeeper(server.ctx, option.DataBaseDSN, option.MigrationsPath(), nLogger); kp != nil {
		if !server.attach(kp, nil) {
			kp.Close()
			return
		}
		keeper = kp
	}

	store := storage.NewMemoryStorage(server.ctx, reallocator.New(limits), keeper, nLogger)
	basecontr := controllers.NewBaseController(store, nLogger)

	// create router and mount routes
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(nLogger))
	r.Mount("/", basecontr.Route())

	nLogger.Info("Starting server",
		zap.String("address", option.RunAddr()),
		zap.String("max_total", limits.MaxTotal.String()),
		zap.String("max_per_item", limits.MaxPerItem.String()),
		zap.String("min_price", limits.MinPrice.String()),
	)

	srv := &http.Server{
		Addr:              option.RunAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if !server.attach(nil, srv) {
		nLogger.Info("Shutdown requested before start")
		return
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		nLogger.Error("Server stopped", zap.Error(err))
	}
}

// attach records the keeper or HTTP server for Shutdown. It reports false
// once Shutdown has run, in which case the caller must not start serving.
func (server *Server) attach(keeper *dbkeeper.DBKeeper, srv *http.Server) bool {
	server.mx.Lock()
	defer server.mx.Unlock()

	if server.stopped || server.ctx.Err() != nil {
		return false
	}
	if keeper != nil {
		server.keeper = keeper
	}
	if srv != nil {
		server.srv = srv
	}
	return true
}

// Shutdown gracefully stops the HTTP server and closes the database pool.
// A Serve call that has not started listening yet returns without serving.
func (server *Server) Shutdown(timeout time.Duration) {
	server.mx.Lock()
	server.stopped = true
	srv, keeper, log := server.srv, server.keeper, server.log
	server.keeper = nil
	server.mx.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Server shutdown error", zap.Error(err))
		}
	}
	if keeper != nil {
		keeper.Close()
	}
	log.Info("Server stopped gracefully")
}
