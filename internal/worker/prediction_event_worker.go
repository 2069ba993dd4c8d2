package worker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"facemask-api/internal/model"
	"facemask-api/internal/platform/rabbitmq"
)

// EventRecorder receives decoded prediction events.
type EventRecorder interface {
	Record(event model.PredictionEvent)
}

// ChannelOpener is satisfied by *amqp.Connection.
type ChannelOpener interface {
	Channel() (*amqp.Channel, error)
}

// PredictionEventWorker drains the prediction event queue into a recorder.
type PredictionEventWorker struct {
	conn      ChannelOpener
	recorder  EventRecorder
	queueName string
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPredictionEventWorker(conn ChannelOpener, recorder EventRecorder, queueName string, logger *zap.Logger) *PredictionEventWorker {
	return &PredictionEventWorker{
		conn:      conn,
		recorder:  recorder,
		queueName: queueName,
		logger:    logger.With(zap.String("component", "prediction_event_worker"), zap.String("queue", queueName)),
	}
}

func (w *PredictionEventWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		w.stop()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		w.stop()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		w.stop()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.logger.Warn("delivery channel closed")
					return
				}
				if err := w.handle(d.Body); err != nil {
					w.logger.Warn("drop prediction event", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()

	w.logger.Info("prediction event worker started")
	return nil
}

func (w *PredictionEventWorker) handle(body []byte) error {
	event, err := rabbitmq.DecodeEvent(body)
	if err != nil {
		return err
	}
	w.recorder.Record(event)
	w.logger.Debug("prediction event recorded",
		zap.String("request_id", event.RequestID),
		zap.String("class", event.Class),
		zap.Bool("failed", event.Failed()),
	)
	return nil
}

// stop undoes a failed Start so a later Start can retry.
func (w *PredictionEventWorker) stop() {
	w.cancel()
	w.cancel = nil
}

func (w *PredictionEventWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
