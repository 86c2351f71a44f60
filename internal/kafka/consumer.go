package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler returns nil only when the message was processed and its offset may
// be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
	log     *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log.With(zap.String("topic", topic), zap.String("group", group))}
}

// Start fetches messages and fans them out to the worker pool until ctx is
// cancelled. Failed messages are logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < c.workers; i++ {
		worker := i
		g.Go(func() error {
			for m := range jobs {
				if err := h(gctx, m); err != nil {
					c.log.Error("handler failed",
						zap.Int("worker", worker),
						zap.Int64("offset", m.Offset),
						zap.Error(err))
					time.Sleep(200 * time.Millisecond)
					continue
				}
				if err := c.r.CommitMessages(gctx, m); err != nil {
					c.log.Warn("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
			return nil
		})
	}

	var readErr error
	for {
		m, err := c.r.FetchMessage(gctx)
		if err != nil {
			if gctx.Err() == nil {
				readErr = err
			}
			break
		}
		select {
		case jobs <- m:
			continue
		case <-gctx.Done():
		}
		break
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return err
	}
	return readErr
}
