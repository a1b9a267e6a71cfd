package events

import (
	"context"
	"errors"
	"time"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/log"
	"firestige.xyz/ethresponder/internal/metrics"
)

// Publisher forwards events to an external system.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// Attach subscribes p to topic on bus.
func Attach(bus *Bus, topic string, p Publisher) error {
	return bus.Subscribe(topic, p.Publish)
}

// FromConfig builds the enabled publishers. Connections are opened here so
// that misconfiguration fails at startup.
func FromConfig(cfg config.EventsConfig) ([]Publisher, error) {
	var pubs []Publisher
	if cfg.Log {
		pubs = append(pubs, NewLogPublisher(log.GetLogger()))
	}
	if cfg.MQTT.Enabled {
		p, err := NewMQTTPublisher(cfg.MQTT)
		if err != nil {
			closeAll(pubs)
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.Kafka.Enabled {
		p, err := NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			closeAll(pubs)
			return nil, err
		}
		pubs = append(pubs, p)
	}
	return pubs, nil
}

func closeAll(pubs []Publisher) {
	for _, p := range pubs {
		_ = p.Close()
	}
}

// CloseAll closes every publisher and joins their errors.
func CloseAll(pubs []Publisher) error {
	var errs []error
	for _, p := range pubs {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LEDNotifier returns a callback that publishes LED changes on bus. Events
// that do not fit the queue are counted and dropped.
func LEDNotifier(bus *Bus) func(level bool) {
	return func(level bool) {
		if err := bus.Publish(NewLEDEvent(level, time.Now())); err != nil {
			metrics.EventsDroppedTotal.WithLabelValues("bus").Inc()
			log.GetLogger().WithError(err).Debug("led event dropped")
		}
	}
}

// LogPublisher writes events to the process log.
type LogPublisher struct {
	logger log.Logger
}

func NewLogPublisher(l log.Logger) *LogPublisher {
	return &LogPublisher{logger: l}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(_ context.Context, e *Event) error {
	body, err := e.Encode()
	if err != nil {
		return err
	}
	p.logger.WithField("topic", e.Topic).WithField("id", e.ID).Info(string(body))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
