// Package redisstream ships committed notifications to a Redis stream so an
// indexer can consume them without touching the settlement core.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/defistate/defistate-amm-core/events"
	"github.com/redis/go-redis/v9"
)

// DefaultStream is used when Config.Stream is empty.
const DefaultStream = "amm:events"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// XAdder is the part of a redis client the sink writes through.
// *redis.Client satisfies it.
type XAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

type Config struct {
	Client XAdder
	Stream string
	// MaxLen trims the stream approximately to this many entries. Zero keeps
	// every entry.
	MaxLen int64
	Logger Logger
}

func (c *Config) validate() error {
	if c.Client == nil {
		return errors.New("config: Client cannot be nil")
	}
	if c.MaxLen < 0 {
		return errors.New("config: MaxLen cannot be negative")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

type Sink struct {
	client XAdder
	stream string
	maxLen int64
	logger Logger
}

func New(cfg *Config) (*Sink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return &Sink{
		client: cfg.Client,
		stream: stream,
		maxLen: cfg.MaxLen,
		logger: cfg.Logger,
	}, nil
}

// Dial connects to a redis server and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis db %d: %w", db, err)
	}
	return client, nil
}

// Run ships records until records is closed or ctx is done.
func (s *Sink) Run(ctx context.Context, records <-chan events.Record) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-records:
			if !ok {
				return nil
			}
			if err := s.Ship(ctx, rec); err != nil {
				return err
			}
		}
	}
}

// Ship appends one record to the stream.
func (s *Sink) Ship(ctx context.Context, rec events.Record) error {
	payload, err := json.Marshal(rec.Event)
	if err != nil {
		return fmt.Errorf("encode %s #%d: %w", rec.Name, rec.Seq, err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"seq":     rec.Seq,
			"name":    string(rec.Name),
			"payload": string(payload),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s #%d: %w", rec.Name, rec.Seq, err)
	}
	s.logger.Debug("notification shipped", "stream", s.stream, "seq", rec.Seq, "name", rec.Name, "id", id)
	return nil
}
