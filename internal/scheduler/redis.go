package scheduler

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultQueue = "default"

var errRedisNotConfigured = errors.New("scheduler: REDIS_URL not configured")

// connection is the Redis endpoint and queue shared by the client, the
// worker and the periodic trigger.
type connection struct {
	opt   asynq.RedisClientOpt
	queue string
}

func connect(cfg config.SchedulerConfig) (connection, error) {
	raw := cfg.GetRedisURL()
	if raw == "" {
		return connection{}, errRedisNotConfigured
	}
	parsed, err := redis.ParseURL(raw)
	if err != nil {
		return connection{}, fmt.Errorf("scheduler: parse redis url: %w", err)
	}

	tlsConfig := parsed.TLSConfig
	if cfg.GetRedisTLSInsecure() {
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		tlsConfig.InsecureSkipVerify = true
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = defaultQueue
	}

	return connection{
		opt: asynq.RedisClientOpt{
			Addr:      parsed.Addr,
			Username:  parsed.Username,
			Password:  parsed.Password,
			DB:        parsed.DB,
			TLSConfig: tlsConfig,
		},
		queue: queue,
	}, nil
}

// asynqLogger routes asynq's own log lines through the application logger.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug(fmt.Sprint(args...), "component", "asynq") }
func (l asynqLogger) Info(args ...any)  { l.log.Info(fmt.Sprint(args...), "component", "asynq") }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn(fmt.Sprint(args...), "component", "asynq") }
func (l asynqLogger) Error(args ...any) { l.log.Error(fmt.Sprint(args...), "component", "asynq") }

func (l asynqLogger) Fatal(args ...any) {
	l.log.Error(fmt.Sprint(args...), "component", "asynq", "fatal", true)
	os.Exit(1)
}
