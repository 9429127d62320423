package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tendermarket/internal/config"
	"tendermarket/internal/controller"
	"tendermarket/internal/lifecycle"
	"tendermarket/internal/logger"
	"tendermarket/internal/notify"
	"tendermarket/internal/repository"
	"tendermarket/internal/repository/memory"
	"tendermarket/internal/router"
	"tendermarket/internal/scheduler"
	"tendermarket/internal/service"
)

// Store is the full persistence surface the app wires together; both the
// postgres repository and the memory store satisfy it.
type Store interface {
	lifecycle.Store
	service.Store
	scheduler.Store
	Close() error
}

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      Store
	engine     *lifecycle.Engine
	scheduler  *scheduler.Scheduler
	service    *service.Service
	controller *controller.Controller
	stopSig    chan os.Signal

	Done chan struct{}
}

type option func(*App)

func WithConfig(cfg *config.Config) option {
	return func(app *App) {
		app.cfg = cfg
	}
}

func WithStore(store Store) option {
	return func(app *App) {
		app.store = store
	}
}

func NewApp(opts ...option) (*App, error) {
	var err error

	app := &App{
		stopSig: make(chan os.Signal, 2),
		Done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.cfg == nil {
		cfg, err := config.NewConfig()
		if err != nil {
			return nil, err
		}
		app.cfg = cfg
	}

	app.log, err = logger.NewLogger(app.cfg.LogLevel, app.cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	if app.store == nil {
		app.store, err = newStore(app.cfg)
		if err != nil {
			return nil, err
		}
	}

	app.engine = lifecycle.NewEngine(app.store, app.log)
	app.scheduler = scheduler.NewScheduler(app.store, app.engine,
		notify.NewLogNotifier(app.log), app.log, &app.cfg.SchedulerConfig)
	app.service = service.NewService(app.store, app.engine, app.log)
	app.controller = controller.NewController(app.service, app.log)

	return app, nil
}

func newStore(cfg *config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "memory":
		return memory.NewStore(), nil
	case "postgres":
		return repository.NewRepository(nil, &cfg.PostgresConfig)
	default:
		return nil, fmt.Errorf("app.newStore: unknown storage driver %q", cfg.StorageDriver)
	}
}

func (app *App) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		sig := <-app.stopSig
		app.log.Info("received signal", zap.String("signal", sig.String()))
		cancel()
	}()

	go app.scheduler.Run(ctx)

	server := http.Server{
		Addr:         app.cfg.ServerAddress,
		Handler:      router.NewRouter(app.controller),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			app.log.Error("http server error", zap.Error(err))
		}
	}()

	app.log.Info("server started", zap.String("address", app.cfg.ServerAddress))
	<-ctx.Done()

	timeout, tcancel := context.WithTimeout(context.Background(), time.Second*10)
	defer tcancel()
	app.log.Info("shutting down http server")
	server.Shutdown(timeout)

	app.log.Info("closing store")
	err := app.store.Close()
	if err != nil {
		app.log.Error("store closing error", zap.Error(err))
	}

	close(app.Done)
	app.log.Info("exiting app")
	app.log.Sync()
}
