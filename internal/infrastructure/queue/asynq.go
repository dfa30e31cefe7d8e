package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"agromart/pkg/logger"
)

// MailQueue is the asynq queue carrying outbound notification emails.
const MailQueue = "mail"

// Handler processes one dequeued task payload.
type Handler func(ctx context.Context, payload []byte) error

// Client enqueues background tasks on Redis via asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(redisURL string) (*Client, error) {
	if redisURL == "" {
		return nil, errors.New("queue: redis URL is required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis URL: %w", err)
	}
	return &Client{client: asynq.NewClient(opt)}, nil
}

// Enqueue schedules a task on the mail queue with bounded retries. The
// caller treats failures as best-effort; nothing here blocks delivery of
// the triggering message.
func (c *Client) Enqueue(ctx context.Context, taskType string, payload []byte) error {
	task := asynq.NewTask(taskType, payload)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(MailQueue),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return err
	}
	logger.Debug("Enqueued task %s id=%s", taskType, info.ID)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Server consumes tasks from the mail queue.
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewServer(redisURL string, concurrency int) (*Server, error) {
	if redisURL == "" {
		return nil, errors.New("queue: redis URL is required")
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis URL: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{MailQueue: 1},
	})

	return &Server{
		server: srv,
		mux:    asynq.NewServeMux(),
	}, nil
}

func (s *Server) Handle(taskType string, handler Handler) {
	s.mux.HandleFunc(taskType, func(ctx context.Context, t *asynq.Task) error {
		return handler(ctx, t.Payload())
	})
}

// Run blocks processing tasks until Shutdown is called.
func (s *Server) Run() error {
	return s.server.Run(s.mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}
