package pool

import (
	"sync"
	"time"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
	sdklog "github.com/hauxe/sioemitter/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	maxWorkers   = 64
	queueTimeout = 5 * time.Second
)

// WorkerConfig defines pool properties
type WorkerConfig struct {
	MaxWorkers   int           `env:"POOL_MAX_WORKERS"`
	QueueTimeout time.Duration `env:"POOL_QUEUE_TIMEOUT"`
}

// Worker is a fixed size pool of goroutines executing queued jobs
type Worker struct {
	Config     *WorkerConfig
	Logger     sdklog.Factory
	WorkerPool chan chan Job
	quit       chan struct{}
	stopOnce   sync.Once
	running    sync.WaitGroup
	started    bool
	mux        sync.Mutex
}

// CreateWorker create a worker pool
func CreateWorker(options ...environment.CreateENVOptions) (worker *Worker, err error) {
	env, err := environment.CreateENV(options...)
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create worker", "create env"))
	}
	config := WorkerConfig{maxWorkers, queueTimeout}
	if err = env.Parse(&config); err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create worker", "parse env"))
	}
	logger, err := sdklog.NewFactory()
	if err != nil {
		return nil, errors.Wrap(err, lib.StringTags("create worker", "get logger"))
	}
	return &Worker{
		Config:     &config,
		WorkerPool: make(chan chan Job, config.MaxWorkers),
		quit:       make(chan struct{}),
		Logger:     logger,
	}, nil
}

// StartServer starts MaxWorkers goroutines, each one registers itself in WorkerPool
// while idle and runs until StopServer
func (w *Worker) StartServer(options ...func() error) (err error) {
	if w.Config == nil {
		return errors.New(lib.StringTags("start worker", "config not found"))
	}
	if err = lib.RunOptionalFunc(options...); err != nil {
		return errors.Wrap(err, lib.StringTags("start worker", "option error"))
	}
	w.mux.Lock()
	defer w.mux.Unlock()
	if w.started {
		return errors.New(lib.StringTags("start worker", "already started"))
	}
	if w.Config.MaxWorkers <= 0 {
		return errors.Errorf("invalid max workers %d", w.Config.MaxWorkers)
	}
	if w.quit == nil {
		w.quit = make(chan struct{})
	}
	if w.WorkerPool == nil {
		w.WorkerPool = make(chan chan Job, w.Config.MaxWorkers)
	}
	w.started = true
	for i := 0; i < w.Config.MaxWorkers; i++ {
		go w.loop()
	}
	return nil
}

func (w *Worker) loop() {
	jobChannel := make(chan Job)
	for {
		// register the current worker into the worker queue.
		select {
		case w.WorkerPool <- jobChannel:
		case <-w.quit:
			return
		}
		select {
		case job := <-jobChannel:
			w.execute(job)
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) execute(job Job) {
	defer w.running.Done()
	if job == nil {
		w.Logger.Bg().Error("worker job error", zap.Error(errors.New("job is nil")))
		return
	}
	defer lib.Recover(func(err error) {
		if err != nil {
			w.ErrorLog(job, err)
		}
	})
	if err := job.Execute(); err != nil {
		w.ErrorLog(job, err)
	}
}

// StopServer stops accepting jobs and waits for the jobs already handed to a worker
func (w *Worker) StopServer() {
	w.stopOnce.Do(func() {
		if w.quit != nil {
			close(w.quit)
		}
	})
	w.running.Wait()
}

// Submit queues a job with the configured queue timeout
func (w *Worker) Submit(job Job) error {
	timeout := time.Duration(0)
	if w.Config != nil {
		timeout = w.Config.QueueTimeout
	}
	return w.QueueJob(job, timeout)
}

// QueueJob hands a job to an idle worker, waiting at most timeout for one.
// A non positive timeout waits until a worker is free or the pool stops.
func (w *Worker) QueueJob(job Job, timeout time.Duration) (err error) {
	select {
	case <-w.quit:
		err = errors.New("queue job on closed worker")
		if job != nil {
			w.ErrorLog(job, err)
		}
		return err
	default:
	}
	var t <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		t = timer.C
	}
	select {
	case jobChannel := <-w.WorkerPool:
		w.running.Add(1)
		select {
		case jobChannel <- job:
			return nil
		case <-w.quit:
			w.running.Done()
			err = errors.New("queue job on closed worker")
		}
	case <-t:
		err = errors.Errorf("wait for worker timedout after %s", timeout)
	case <-w.quit:
		err = errors.New("queue job on closed worker")
	}
	if job != nil {
		w.ErrorLog(job, err)
	}
	return err
}

// ErrorLog log error
func (w *Worker) ErrorLog(job Job, err error) {
	logger := w.Logger.Bg()
	if ctx := job.GetContext(); ctx != nil {
		logger = w.Logger.For(ctx)
	}
	logger.Error("worker job error",
		zap.String("job name", job.Name()),
		zap.Error(err))
}

// SetMaxWorkersOption set max worker
func (w *Worker) SetMaxWorkersOption(maxWorkers int) func() error {
	return func() (err error) {
		if maxWorkers <= 0 {
			return errors.Errorf("invalid max workers %d", maxWorkers)
		}
		w.Config.MaxWorkers = maxWorkers
		w.WorkerPool = make(chan chan Job, maxWorkers)
		return nil
	}
}

// SetQueueTimeoutOption set the timeout used by Submit
func (w *Worker) SetQueueTimeoutOption(timeout time.Duration) func() error {
	return func() (err error) {
		w.Config.QueueTimeout = timeout
		return nil
	}
}
