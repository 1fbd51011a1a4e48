package notify

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// SinkConfig selects the delivery backends. Empty fields disable the
// corresponding sink.
type SinkConfig struct {
	ChatWebhookURL string
	Redis          *redis.Client
	Stream         string
	KafkaBrokers   []string
	KafkaTopic     string
}

// BuildSinks returns one sink per configured backend and a func that
// releases their resources. Call it only after the dispatcher has drained.
func BuildSinks(c SinkConfig) ([]Sink, func() error) {
	var (
		sinks   []Sink
		closers []func() error
	)

	if c.ChatWebhookURL != "" {
		sinks = append(sinks, NewChatWebhook(c.ChatWebhookURL))
	}
	if c.Redis != nil && c.Stream != "" {
		sinks = append(sinks, NewRedisStream(c.Redis, c.Stream))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic != "" {
		k := NewKafka(c.KafkaBrokers, c.KafkaTopic)
		sinks = append(sinks, k)
		closers = append(closers, k.Close)
	}

	return sinks, func() error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}
		return errors.Join(errs...)
	}
}

func SinkNames(sinks []Sink) []string {
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	return names
}
