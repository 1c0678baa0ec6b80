package workers

import (
	"context"
	"log/slog"
	"orchestra/domain/event"
	"reflect"
	"time"
)

// NamedChannel is a channel watched by the ChannelCapacityWorker.
type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically reports the length and capacity of the internal channels
// (domain events, evictions, telemetry). Reading them is non-blocking and a lost report
// is replaced by the next sample.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	telemetryChan chan event.Event, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping capacity reports")
			return nil
		case <-ticker.C:
			for _, report := range w.sample() {
				select {
				case w.telemetryChan <- report:
				default:
					w.log.Debug("Observability telemetry event lost")
				}
			}
		}
	}
}

// sample reads every watched channel once.
func (w ChannelCapacityWorker) sample() []event.Event {
	reports := make([]event.Event, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		reports = append(reports, event.Event{
			Type:      event.ChannelCapacityType,
			CreatedAt: time.Now().UTC(),
			Payload: event.ChannelCapacity{
				ChannelName: nc.Name,
				Capacity:    v.Cap(),
				Length:      v.Len(),
			},
		})
	}
	return reports
}
