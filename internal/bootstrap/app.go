package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appsvc "facemask-api/internal/app"
	"facemask-api/internal/cache"
	"facemask-api/internal/config"
	"facemask-api/internal/logging"
	rabbitmqClient "facemask-api/internal/platform/rabbitmq"
	redisClient "facemask-api/internal/platform/redis"
	"facemask-api/internal/stats"
	"facemask-api/internal/upload"
	"facemask-api/internal/vision"
	"facemask-api/internal/worker"
)

type App struct {
	Config         *config.Config
	Logger         *zap.Logger
	Model          *vision.ONNXModel
	Predictor      *vision.Predictor
	Scratch        *upload.ScratchStore
	Stats          *stats.Recorder
	PredictService *appsvc.PredictService
	Redis          *redis.Client
	MQConn         *amqp.Connection
	EventWorker    *worker.PredictionEventWorker

	StartedAt time.Time
}

// New loads configuration and every long-lived resource. Any error here
// means the process must not serve traffic.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	scratch, err := upload.NewScratchStore(cfg.Upload.Dir)
	if err != nil {
		return err
	}
	a.Scratch = scratch

	a.Logger.Info("loading model", zap.String("path", cfg.Vision.ModelPath))
	onnxModel, err := vision.LoadONNXModel(cfg.Vision.ModelPath, cfg.Vision.ONNXSharedLibPath, cfg.Vision.InputSize)
	if err != nil {
		return fmt.Errorf("load model %s failed: %w", cfg.Vision.ModelPath, err)
	}
	a.Model = onnxModel
	a.Predictor = vision.NewPredictor(onnxModel, cfg.Vision.InputSize, cfg.Vision.Threshold)
	a.Stats = stats.NewRecorder()

	var opts []appsvc.Option
	var events appsvc.EventPublisher = a.Stats

	if cfg.Redis.Addr != "" {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
		ttl := time.Duration(cfg.Redis.PredictionTTLSeconds) * time.Second
		opts = append(opts, appsvc.WithCache(cache.NewPredictionCache(client, ttl,
			cache.ModelNamespace(cfg.Vision.ModelPath, cfg.Vision.InputSize, cfg.Vision.Threshold))))
		a.Logger.Info("prediction cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.PredictionEventQueue)
		if err != nil {
			return err
		}
		a.MQConn = conn

		a.EventWorker = worker.NewPredictionEventWorker(conn, a.Stats, cfg.RabbitMQ.PredictionEventQueue, a.Logger)
		if err := a.EventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start prediction event worker failed: %w", err)
		}
		events = rabbitmqClient.NewEventPublisher(conn, cfg.RabbitMQ.PredictionEventQueue)
		a.Logger.Info("prediction events routed through rabbitmq", zap.String("queue", cfg.RabbitMQ.PredictionEventQueue))
	}
	opts = append(opts, appsvc.WithEvents(events))

	a.PredictService = appsvc.NewPredictService(
		a.Predictor,
		scratch,
		upload.NewExtensions(cfg.Upload.AllowedExtensions...),
		a.Logger,
		opts...,
	)
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Model != nil {
		a.Model.Close()
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
