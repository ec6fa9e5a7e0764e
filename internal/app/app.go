package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/iwtcode/grblService/internal/adapters/handlers"
	"github.com/iwtcode/grblService/internal/adapters/repositories/memory"
	"github.com/iwtcode/grblService/internal/adapters/repositories/postgres"
	"github.com/iwtcode/grblService/internal/adapters/tcpserver"
	"github.com/iwtcode/grblService/internal/config"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/metrics"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
	"github.com/iwtcode/grblService/internal/services/grbl"
	"github.com/iwtcode/grblService/internal/services/history"
	"github.com/iwtcode/grblService/internal/services/kafka"
	"github.com/iwtcode/grblService/internal/services/programs"
	"github.com/iwtcode/grblService/internal/services/serial"
	"github.com/iwtcode/grblService/internal/usecases"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

// historyCapacity - размер истории запусков в памяти, если БД отключена
const historyCapacity = 500

// New создает новый экземпляр fx.App
func New() *fx.App {
	return fx.New(Options())
}

// Options собирает все модули приложения
func Options() fx.Option {
	return fx.Options(
		ConfigModule,
		LoggingModule,
		MetricsModule,
		BroadcastModule,
		RepositoryModule,
		ProducerModule,
		ServiceModule,
		ControllerModule,
		UsecaseModule,
		TCPServerModule,
		HttpServerModule,
		// Invoke-функции для запуска фоновых задач и хуков жизненного цикла
		fx.Invoke(InvokeLoadMacros),
		fx.Invoke(InvokeSerialLink),
		fx.Invoke(InvokeHistoryRecorder),
		fx.Invoke(InvokeKafkaExporter),
	)
}

// --- Модули FX ---

var ConfigModule = fx.Module("config_module",
	fx.Provide(config.LoadConfiguration),
)

func ProvideLogger(cfg *config.AppConfig) *logging.Logger {
	loggerCfg := &logging.Config{
		Enabled:    cfg.Logging.Enable,
		Level:      cfg.Logging.Level,
		LogsDir:    cfg.Logging.LogsDir,
		SavingDays: uint(cfg.Logging.SavingDays),
	}
	return logging.NewLogger(loggerCfg, "GrblServiceApp")
}

var LoggingModule = fx.Module("logging_module",
	fx.Provide(ProvideLogger),
	fx.Invoke(InvokeCloseLogger),
)

// InvokeCloseLogger закрывает файл логов последним при остановке.
func InvokeCloseLogger(lc fx.Lifecycle, logger *logging.Logger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return logger.Close()
		},
	})
}

// ProvideRegistry создает реестр метрик с метриками процесса и рантайма Go
func ProvideRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

func ProvideMetrics(registry *prometheus.Registry) *metrics.Metrics {
	return metrics.New(registry)
}

var MetricsModule = fx.Module("metrics_module",
	fx.Provide(ProvideRegistry, ProvideMetrics),
)

var BroadcastModule = fx.Module("broadcast_module",
	fx.Provide(
		broadcast.New,
		func(b *broadcast.Broadcaster) interfaces.EventPublisher { return b },
	),
)

// ProvideHistoryRepository выбирает хранилище истории запусков: PostgreSQL при DB_ENABLE, иначе память
func ProvideHistoryRepository(cfg *config.AppConfig, logger *logging.Logger) (interfaces.JobHistoryRepository, error) {
	if !cfg.Database.Enable {
		logger.Info("Database disabled, job history is kept in memory", "capacity", historyCapacity)
		return memory.NewJobHistory(historyCapacity), nil
	}
	return postgres.NewRepository(cfg, logger)
}

var RepositoryModule = fx.Module("repository_module",
	fx.Provide(ProvideHistoryRepository),
)

var ProducerModule = fx.Module("producer_module",
	fx.Provide(kafka.NewKafkaProducer),
)

func ProvideSimulator(cfg *config.AppConfig) *serial.Simulator {
	return serial.NewSimulator(cfg.Grbl.RxBufferSize)
}

func ProvideLink(cfg *config.AppConfig, sim *serial.Simulator, logger *logging.Logger) *serial.Link {
	return serial.NewLink(serial.NewOpener(cfg.Serial, sim), cfg.Serial.ReconnectBackoff, logger)
}

var ServiceModule = fx.Module("service_module",
	fx.Provide(
		programs.NewStore,
		func(s *programs.Store) interfaces.ProgramStore { return s },
		ProvideSimulator,
		ProvideLink,
		history.NewRecorder,
	),
)

func ProvideController(
	cfg *config.AppConfig,
	link *serial.Link,
	store interfaces.ProgramStore,
	publisher interfaces.EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
) *grbl.Controller {
	return grbl.NewController(link, store, publisher, logger, m, cfg.Grbl.RxBufferSize)
}

var ControllerModule = fx.Module("controller_module",
	fx.Provide(
		ProvideController,
		func(c *grbl.Controller) interfaces.JobController { return c },
	),
)

var UsecaseModule = fx.Module("usecases_module",
	fx.Provide(usecases.NewUsecases),
)

func ProvideTCPServer(
	cfg *config.AppConfig,
	usecase interfaces.Usecases,
	b *broadcast.Broadcaster,
	logger *logging.Logger,
	m *metrics.Metrics,
) *tcpserver.Server {
	return tcpserver.NewServer(net.JoinHostPort("", cfg.ServerPort), usecase, b, logger, m)
}

var TCPServerModule = fx.Module("tcp_server_module",
	fx.Provide(ProvideTCPServer),
	fx.Invoke(InvokeTCPServer),
)

var HttpServerModule = fx.Module("http_server_module",
	fx.Provide(
		handlers.NewHandler,
		handlers.ProvideRouter,
	),
	fx.Invoke(InvokeHttpServer),
)

// InvokeLoadMacros загружает программы из каталога макросов при старте.
func InvokeLoadMacros(lc fx.Lifecycle, cfg *config.AppConfig, store *programs.Store, logger *logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loaded, err := store.LoadMacros(cfg.Grbl.MacroDir)
			if err != nil {
				logger.Warn("Failed to load macros", "dir", cfg.Grbl.MacroDir, "error", err)
				return nil // Не фатально
			}
			logger.Info("Macros loaded", "dir", cfg.Grbl.MacroDir, "count", loaded)
			return nil
		},
	})
}

// InvokeSerialLink запускает канал к контроллеру и периодический опрос статуса.
func InvokeSerialLink(lc fx.Lifecycle, cfg *config.AppConfig, link *serial.Link, ctrl *grbl.Controller, logger *logging.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	var linkDone, pollDone <-chan struct{}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting serial link", "port", cfg.Serial.Port, "baud", cfg.Serial.BaudRate,
				"status_interval", cfg.Grbl.StatusInterval)
			linkDone = link.Run(runCtx)
			pollDone = ctrl.StartPolling(runCtx, cfg.Grbl.StatusInterval)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping serial link...")
			cancel()
			return waitAll(ctx, linkDone, pollDone)
		},
	})
}

// InvokeHistoryRecorder запускает запись истории запусков.
func InvokeHistoryRecorder(lc fx.Lifecycle, recorder *history.Recorder) {
	runCtx, cancel := context.WithCancel(context.Background())
	var done <-chan struct{}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			done = recorder.Run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return waitAll(ctx, done)
		},
	})
}

// InvokeKafkaExporter запускает экспорт событий в Kafka, если он включен.
func InvokeKafkaExporter(
	lc fx.Lifecycle,
	cfg *config.AppConfig,
	producer interfaces.KafkaService,
	b *broadcast.Broadcaster,
	logger *logging.Logger,
) {
	if !cfg.Kafka.Enable {
		logger.Info("Kafka export disabled")
		return
	}

	exporter := kafka.NewExporter(producer, b, logger)
	runCtx, cancel := context.WithCancel(context.Background())
	var done <-chan struct{}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Kafka exporter is starting", "broker", cfg.Kafka.Broker, "topic", cfg.Kafka.Topic)
			done = exporter.Run(runCtx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if err := waitAll(ctx, done); err != nil {
				return err
			}
			return producer.Close()
		},
	})
}

// InvokeTCPServer запускает сервер протокола.
func InvokeTCPServer(lc fx.Lifecycle, server *tcpserver.Server, logger *logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping protocol server...")
			return server.Stop(ctx)
		},
	})
}

// InvokeHttpServer запускает HTTP-сервер.
func InvokeHttpServer(lc fx.Lifecycle, cfg *config.AppConfig, h http.Handler, logger *logging.Logger) {
	serverAddr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     h,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout не задан: /events держит websocket открытым
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("HTTP Server is starting", "address", serverAddr)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Failed to start server", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server...")
			return server.Shutdown(ctx)
		},
	})
}

func waitAll(ctx context.Context, chans ...<-chan struct{}) error {
	for _, ch := range chans {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
