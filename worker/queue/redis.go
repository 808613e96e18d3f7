package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"threatAnalyzer/worker/models"
)

// ErrEmpty is returned by Pop when the wait elapsed without a task.
var ErrEmpty = errors.New("queue: no task available")

// MalformedError carries a payload that could not be turned into a valid task.
type MalformedError struct {
	Payload    string
	DecisionID string
	Err        error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed task payload: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

type Consumer interface {
	Pop(ctx context.Context, timeout time.Duration) (*models.AnalysisTask, error)
}

type Producer interface {
	Push(ctx context.Context, task *models.AnalysisTask) error
}

// RedisQueue is a list based queue: producers LPUSH, consumers BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Key() string { return q.key }

func (q *RedisQueue) Push(ctx context.Context, task *models.AnalysisTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*models.AnalysisTask, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("brpop %s: %w", q.key, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("brpop %s: unexpected reply length %d", q.key, len(res))
	}
	return Decode([]byte(res[1]))
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Decode parses a queue payload and validates the required fields.
func Decode(payload []byte) (*models.AnalysisTask, error) {
	var task models.AnalysisTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, &MalformedError{Payload: string(payload), Err: err}
	}
	if err := task.Validate(); err != nil {
		return nil, &MalformedError{Payload: string(payload), DecisionID: task.DecisionID, Err: err}
	}
	return &task, nil
}
