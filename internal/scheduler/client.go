package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

// Client enqueues follow-up steps onto the delay queue. It implements
// followup.DelayQueue.
type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	opt, err := redisConnOpt(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		client: asynq.NewClient(opt),
		queue:  cfg.GetAsynqQueueName(),
	}
	if c.queue == "" {
		c.queue = defaultQueue
	}
	return c, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleAt enqueues the step for delivery at the given time. Steps are
// never revoked from the queue; stale ones are discarded at fire time.
func (c *Client) ScheduleAt(ctx context.Context, step followup.Step, at time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewFollowupStepTask(step)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(at), asynq.Queue(c.queue))
	return err
}

// redisConnOpt builds the asynq connection options from the configured redis
// URL. Managed redis providers hand out rediss:// URLs whose certificates do
// not always match the proxy hostname, hence the insecure toggle.
func redisConnOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("redis url not configured")
	}

	parsed, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	tlsConfig := parsed.TLSConfig
	if tlsConfig != nil {
		tlsConfig = tlsConfig.Clone()
	}
	if cfg.GetRedisTLSInsecure() {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		}
		tlsConfig.InsecureSkipVerify = true
	}

	return asynq.RedisClientOpt{
		Addr:      parsed.Addr,
		Password:  parsed.Password,
		DB:        parsed.DB,
		TLSConfig: tlsConfig,
	}, nil
}
