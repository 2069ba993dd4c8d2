package app

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"facemask-api/internal/logging"
	"facemask-api/internal/model"
	"facemask-api/internal/upload"
	"facemask-api/internal/vision"
)

const eventPublishTimeout = 2 * time.Second

// Classifier turns a saved image file into a prediction.
type Classifier interface {
	PredictFile(path string) (model.Prediction, error)
}

type PredictionCache interface {
	Get(ctx context.Context, digest string) (model.Prediction, bool, error)
	Set(ctx context.Context, digest string, pred model.Prediction) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event model.PredictionEvent) error
}

// Upload is one image received by the HTTP layer.
type Upload struct {
	RequestID string
	Filename  string
	Body      io.Reader
}

type PredictService struct {
	classifier Classifier
	scratch    *upload.ScratchStore
	allowed    upload.Extensions
	cache      PredictionCache
	events     EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*PredictService)

// WithCache enables result reuse for byte-identical uploads.
func WithCache(cache PredictionCache) Option {
	return func(s *PredictService) { s.cache = cache }
}

func WithEvents(events EventPublisher) Option {
	return func(s *PredictService) { s.events = events }
}

func NewPredictService(
	classifier Classifier,
	scratch *upload.ScratchStore,
	allowed upload.Extensions,
	logger *zap.Logger,
	opts ...Option,
) *PredictService {
	s := &PredictService{
		classifier: classifier,
		scratch:    scratch,
		allowed:    allowed,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict validates the upload, copies it to a scratch file, classifies it
// and removes the scratch file before returning. Validation failures are
// returned as upload sentinel errors; later failures as
// *logging.OperationError naming the failed stage.
func (s *PredictService) Predict(ctx context.Context, in Upload) (pred model.Prediction, err error) {
	if err := upload.Validate(in.Filename, s.allowed); err != nil {
		return model.Prediction{}, err
	}

	start := s.now()
	log := logging.WithOperation(s.logger, "predict", in.RequestID)

	file, err := s.scratch.Save(in.Body, in.Filename)
	if err != nil {
		err = logging.NewOperationError(logging.StageSave, in.RequestID, err)
		s.emit(ctx, in, upload.SanitizeFilename(in.Filename), model.Prediction{}, false, err, start)
		return model.Prediction{}, err
	}

	cached := false
	defer func() {
		if rmErr := file.Remove(); rmErr != nil {
			log.Warn("scratch cleanup failed", zap.String("path", file.Path), zap.Error(rmErr))
		}
		s.emit(ctx, in, file.Name, pred, cached, err, start)
	}()

	if s.cache != nil {
		hit, ok, cacheErr := s.cache.Get(ctx, file.SHA256)
		if cacheErr != nil {
			log.Warn("prediction cache lookup failed", zap.Error(cacheErr))
		} else if ok {
			cached = true
			log.Debug("prediction cache hit", zap.String("sha256", file.SHA256))
			return hit, nil
		}
	}

	pred, err = s.classifier.PredictFile(file.Path)
	if err != nil {
		return model.Prediction{}, logging.NewOperationError(stageOf(err), in.RequestID, err)
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, file.SHA256, pred); cacheErr != nil {
			log.Warn("prediction cache store failed", zap.Error(cacheErr))
		}
	}

	log.Info("prediction finished",
		zap.String("class", pred.Class),
		zap.Float64("confidence", pred.Confidence),
		zap.Int64("bytes", file.Size),
	)
	return pred, nil
}

func stageOf(err error) string {
	switch {
	case errors.Is(err, vision.ErrInference):
		return logging.StageInference
	case errors.Is(err, vision.ErrDecode):
		return logging.StagePreprocess
	default:
		return logging.StagePredict
	}
}

func (s *PredictService) emit(ctx context.Context, in Upload, filename string, pred model.Prediction, cached bool, err error, start time.Time) {
	if s.events == nil {
		return
	}

	now := s.now()
	event := model.PredictionEvent{
		RequestID:  in.RequestID,
		Filename:   filename,
		Class:      pred.Class,
		Confidence: pred.Confidence,
		Cached:     cached,
		LatencyMs:  now.Sub(start).Milliseconds(),
		CreatedAt:  now.UTC(),
	}
	if err != nil {
		event.Class = ""
		event.Confidence = 0
		event.Error = PublicMessage(err)
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()
	if pubErr := s.events.Publish(pubCtx, event); pubErr != nil {
		s.logger.Warn("publish prediction event failed", zap.String("request_id", in.RequestID), zap.Error(pubErr))
	}
}

// PublicMessage strips the stage annotation from a pipeline error, leaving
// the message returned to clients.
func PublicMessage(err error) string {
	var opErr *logging.OperationError
	if errors.As(err, &opErr) && opErr.Err != nil {
		return opErr.Cause()
	}
	return err.Error()
}
