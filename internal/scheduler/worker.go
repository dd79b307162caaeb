package scheduler

import (
	"context"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/config"
	"github.com/VentilardorArnor/Avantti-Vitor/platform/logger"

	"github.com/hibiken/asynq"
)

// Worker consumes due follow-up steps and hands them to the executor. The
// executor decides whether each step still fires; the worker only moves
// payloads.
type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	executor *followup.Executor
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, executor *followup.Executor, log *logger.Logger) (*Worker, error) {
	opt, err := redisConnOpt(cfg)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = defaultQueue
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		executor: executor,
		log:      log,
	}

	mux.HandleFunc(TaskFollowupStep, w.handleFollowupStep)

	return w, nil
}

func (w *Worker) handleFollowupStep(ctx context.Context, task *asynq.Task) error {
	step, err := ParseFollowupStepPayload(task)
	if err != nil {
		// A payload that never parses will never parse; drop it.
		w.log.Error("malformed followup step payload", "error", err)
		return nil
	}
	return w.executor.Execute(ctx, step)
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
