package kafka

import (
	"context"
	"encoding/json"

	"github.com/iwtcode/grblService/internal/domain/entities"
	"github.com/iwtcode/grblService/internal/interfaces"
	"github.com/iwtcode/grblService/internal/middleware/logging"
	"github.com/iwtcode/grblService/internal/services/broadcast"
	"github.com/iwtcode/grblService/models"
)

const exporterID = "kafka-exporter"

// Exporter публикует события брокера в Kafka в формате рассылки клиентам.
// Ключ сообщения - тип события. События, пришедшие извне (RemoteOrigin), не экспортируются.
type Exporter struct {
	producer    interfaces.KafkaService
	broadcaster *broadcast.Broadcaster
	logger      *logging.Logger
}

func NewExporter(producer interfaces.KafkaService, b *broadcast.Broadcaster, logger *logging.Logger) *Exporter {
	return &Exporter{
		producer:    producer,
		broadcaster: b,
		logger:      logger.WithPrefix("KAFKA"),
	}
}

// Run читает события до отмены ctx. Возвращает канал, закрываемый после остановки.
func (e *Exporter) Run(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	sub := e.broadcaster.Subscribe(exporterID, broadcast.SkipRemote(), broadcast.WithBuffer(1024))

	go func() {
		defer close(done)
		defer e.broadcaster.Unsubscribe(exporterID)

		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-sub.Events:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					e.logger.Warn("Exporter subscription dropped, resubscribing")
					sub = e.broadcaster.Subscribe(exporterID, broadcast.SkipRemote(), broadcast.WithBuffer(1024))
					continue
				}
				e.export(ctx, evt)
			}
		}
	}()
	return done
}

func (e *Exporter) export(ctx context.Context, evt entities.Event) {
	value, err := json.Marshal(models.NewEventEnvelope(string(evt.Kind), evt.Data, evt.Timestamp))
	if err != nil {
		e.logger.Error("Failed to encode event", "event", evt.Kind, "error", err)
		return
	}
	if err := e.producer.Produce(ctx, []byte(evt.Kind), value); err != nil {
		if ctx.Err() == nil {
			e.logger.Error("Failed to produce event", "event", evt.Kind, "error", err)
		}
		return
	}
	e.logger.Debug("Event exported", "event", evt.Kind)
}
