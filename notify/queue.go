package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueKey = "notify:whatsapp"
	maxAttempts     = 3
)

// Job is a queued WhatsApp message.
type Job struct {
	To       string    `json:"to"`
	Body     string    `json:"body"`
	Attempts int       `json:"attempts"`
	QueuedAt time.Time `json:"queued_at"`
}

// Queue is a redis list of WhatsApp jobs. Producers LPUSH, the worker BRPOPs.
type Queue struct {
	rdb     *redis.Client
	key     string
	timeout time.Duration
}

func NewQueue(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb, key: defaultQueueKey, timeout: 5 * time.Second}
}

func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.QueuedAt.IsZero() {
		job.QueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

// SendWhatsApp queues the message instead of sending it.
func (q *Queue) SendWhatsApp(ctx context.Context, to, body string) error {
	return q.Enqueue(ctx, Job{To: to, Body: body})
}

// Next blocks until a job is available. It returns (nil, nil) when the wait times out.
func (q *Queue) Next(ctx context.Context) (*Job, error) {
	res, err := q.rdb.BRPop(ctx, q.timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply of %d elements", len(res))
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Consume delivers queued jobs through m until ctx is done. Failed jobs are
// re-queued up to maxAttempts.
func (q *Queue) Consume(ctx context.Context, m Messenger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := q.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("whatsapp queue read failed", slog.String("error", err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}
		q.handle(ctx, m, *job)
	}
}

func (q *Queue) handle(ctx context.Context, m Messenger, job Job) {
	err := m.SendWhatsApp(ctx, job.To, job.Body)
	if err == nil {
		return
	}
	job.Attempts++
	if job.Attempts >= maxAttempts {
		slog.Error("whatsapp job dropped",
			slog.String("to", job.To),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
		return
	}
	slog.Warn("whatsapp job failed, re-queued", slog.String("to", job.To), slog.String("error", err.Error()))
	if err := q.Enqueue(ctx, job); err != nil {
		slog.Error("whatsapp job re-queue failed", slog.String("error", err.Error()))
	}
}
