package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/EdinaDepner/CadenceCoach/internal/adapters/activitylog"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/audio"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/http/api"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/http/swagger"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/http/ws"
	"github.com/EdinaDepner/CadenceCoach/internal/adapters/mq/mqtt"
	service "github.com/EdinaDepner/CadenceCoach/internal/app"
	"github.com/EdinaDepner/CadenceCoach/internal/config"
	"github.com/EdinaDepner/CadenceCoach/pkg/logger"
	"github.com/EdinaDepner/CadenceCoach/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	subscribeTimeout  = 10 * time.Second
)

func main() {
	// Runtime metrics go to the same registry as the service metrics.
	metrics.GetRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := logger.Init(); err != nil {
		// Use fmt for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to sync logger: " + err.Error() + "\n")
		}
	}()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.InitWithFormat(os.Stdout, logger.Format(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "cadence coach exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run wires the service and its transports and blocks until ctx ends.
func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	logFactory, closeSink, err := openLogSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	// Cues go to the log, and to the broker once it is connected.
	var cuePub atomic.Pointer[mqtt.CuePublisher]
	player := audio.NewCuePlayer(
		audio.MultiOutput{
			audio.LogOutput{Logger: log.Named("cues")},
			audio.OutputFunc(func(ctx context.Context, c audio.Cue) error {
				if p := cuePub.Load(); p != nil {
					return p.Emit(ctx, c)
				}
				return nil
			}),
		},
		audio.WithLogger(log.Named("audio")),
	)
	defer func() {
		if err := player.Close(); err != nil {
			log.Warn(ctx, "closing cue player failed", logger.Error(err))
		}
	}()

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithSink(player),
		service.WithLogFactory(logFactory),
		service.WithTickInterval(cfg.TickInterval()),
		service.WithCalibrationWindow(cfg.CalibrationWindow()),
		service.WithDeltaDetection(cfg.DeltaDetection),
		service.WithStepQueueSize(cfg.StepQueueSize),
		service.WithLogQueueSize(cfg.LogQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithParticipant(cfg.DefaultParticipantID),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := svc.Shutdown(shutdownCtx); err != nil {
			log.Error(ctx, "service shutdown failed", logger.Error(err))
		}
	}()

	hub := ws.NewHub(ws.WithLogger(log.Named("ws")), ws.WithStatus(svc.Status))
	defer hub.Close()
	svc.AddObserver(hub)

	if cfg.MQTTEnabled {
		client, err := connectMQTT(ctx, cfg, svc, log)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		cuePub.Store(mqtt.NewCuePublisher(client, cfg.MQTTCueTopic))
		svc.AddObserver(mqtt.NewStatusPublisher(client, cfg.MQTTStatusTopic, log.Named("mqtt")))
	}

	// HTTP mux and routes.
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, hub, api.WithLogger(log.Named("http"))).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(gctx, "server shutdown failed", logger.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info(ctx, "server stopped")
	return err
}

// openLogSink selects the activity log backend from config.
func openLogSink(ctx context.Context, cfg *config.Config) (activitylog.Factory, func(), error) {
	switch cfg.LogSink {
	case config.LogSinkPostgres:
		pool, err := activitylog.OpenPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := activitylog.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Get().Info(ctx, "activity log writing to postgres")
		return activitylog.PostgresFactory(pool), pool.Close, nil
	case config.LogSinkNone:
		return activitylog.DiscardFactory, func() {}, nil
	default:
		logger.Get().Info(ctx, "activity log writing csv files", logger.String("dir", cfg.LogDir))
		return activitylog.CSVFactory(cfg.LogDir), func() {}, nil
	}
}

// connectMQTT dials the broker. Every (re)connect subscribes to the step
// topic and marks the sensor available; losing the connection marks it
// unavailable.
func connectMQTT(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) (paho.Client, error) {
	mlog := log.Named("mqtt")
	hooks := mqtt.Hooks{
		OnConnect: func(c paho.Client) {
			subCtx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
			defer cancel()
			src := mqtt.NewStepSource(c, cfg.MQTTStepTopic, svc, mlog)
			if err := src.Subscribe(subCtx); err != nil {
				mlog.Error(subCtx, "step topic subscription failed", logger.String("topic", cfg.MQTTStepTopic), logger.Error(err))
				svc.SetSensorAvailable(false)
				return
			}
			svc.SetSensorAvailable(true)
		},
		OnConnectionLost: func(error) {
			svc.SetSensorAvailable(false)
		},
	}

	client, err := mqtt.Connect(ctx, mqtt.Config{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
	}, hooks, mlog)
	if err != nil {
		return nil, err
	}
	return client, nil
}
