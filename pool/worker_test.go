package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/hauxe/sioemitter/environment"
	lib "github.com/hauxe/sioemitter/library"
)

func TestCreateWorker(t *testing.T) {
	t.Parallel()
	t.Run("error create env", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker(func(_ *environment.ENVConfig) error {
			return errors.New("test env error")
		})
		require.Error(t, err)
		require.Nil(t, worker)
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker()
		require.Nil(t, err)
		require.NotNil(t, worker)
		require.Equal(t, maxWorkers, worker.Config.MaxWorkers)
		require.Equal(t, queueTimeout, worker.Config.QueueTimeout)
	})
}

type job struct {
	name string
	f    func()
}

func (j *job) Name() string {
	return j.name
}

func (j *job) GetContext() context.Context {
	return context.Background()
}

func (j *job) Execute() error {
	j.f()
	return nil
}

func TestStartWorker(t *testing.T) {
	t.Parallel()

	t.Run("error empty config", func(t *testing.T) {
		t.Parallel()
		worker := Worker{}
		require.Error(t, worker.StartServer())
	})

	t.Run("error option", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker()
		require.Nil(t, err)
		err = worker.StartServer(func() error {
			return errors.New("test option error")
		})
		require.Error(t, err)
		require.Error(t, worker.StartServer(worker.SetMaxWorkersOption(0)))
	})

	t.Run("error started twice", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker()
		require.Nil(t, err)
		require.Nil(t, worker.StartServer(worker.SetMaxWorkersOption(1)))
		defer worker.StopServer()
		require.Error(t, worker.StartServer())
	})

	t.Run("success drop timeout jobs", func(t *testing.T) {
		t.Parallel()
		numJob := 12
		numWorker := 10
		worker, err := CreateWorker()
		require.Nil(t, err)
		err = worker.StartServer(worker.SetMaxWorkersOption(numWorker))
		require.Nil(t, err)
		var counter int32
		var started sync.WaitGroup
		var done sync.WaitGroup
		release := make(chan struct{})
		f := func() {
			atomic.AddInt32(&counter, 1)
			started.Done()
			<-release
			atomic.AddInt32(&counter, 1)
			done.Done()
		}
		for i := 0; i < numJob; i++ {
			j := job{name: "job: " + lib.ToString(i), f: f}
			if i < numWorker {
				started.Add(1)
				done.Add(1)
			}
			err := worker.QueueJob(&j, 100*time.Millisecond)
			if i < numWorker {
				require.Nil(t, err)
			} else {
				require.Error(t, err)
			}
		}
		started.Wait()
		require.Equal(t, int32(numWorker), atomic.LoadInt32(&counter))
		close(release)
		done.Wait()
		require.Equal(t, int32(numWorker*2), atomic.LoadInt32(&counter))
		worker.StopServer()
	})

	t.Run("success continue after busy workers", func(t *testing.T) {
		t.Parallel()
		numJob := 20
		numWorker := 10
		worker, err := CreateWorker()
		require.Nil(t, err)
		err = worker.StartServer(worker.SetMaxWorkersOption(numWorker),
			worker.SetQueueTimeoutOption(time.Second))
		require.Nil(t, err)
		var counter int32
		var wg sync.WaitGroup
		f := func() {
			atomic.AddInt32(&counter, 1)
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&counter, 1)
			wg.Done()
		}
		for i := 0; i < numJob; i++ {
			wg.Add(1)
			require.Nil(t, worker.Submit(&job{name: "job: " + lib.ToString(i), f: f}))
		}
		wg.Wait()
		require.Equal(t, int32(numJob*2), atomic.LoadInt32(&counter))
		worker.StopServer()
	})
}

func TestStopServer(t *testing.T) {
	t.Parallel()
	t.Run("waits for running jobs", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker()
		require.Nil(t, err)
		require.Nil(t, worker.StartServer(worker.SetMaxWorkersOption(2)))
		var finished int32
		err = worker.QueueJob(&JobFunc{
			JobName: "slow",
			F: func(_ context.Context) error {
				time.Sleep(50 * time.Millisecond)
				atomic.StoreInt32(&finished, 1)
				return nil
			},
		}, time.Second)
		require.Nil(t, err)
		worker.StopServer()
		require.Equal(t, int32(1), atomic.LoadInt32(&finished))
		// stopping twice is a no-op
		worker.StopServer()
	})
	t.Run("rejects after stop", func(t *testing.T) {
		t.Parallel()
		worker, err := CreateWorker()
		require.Nil(t, err)
		require.Nil(t, worker.StartServer(worker.SetMaxWorkersOption(1)))
		worker.StopServer()
		err = worker.QueueJob(&JobFunc{JobName: "late"}, 0)
		require.Error(t, err)
	})
}

func TestJobErrors(t *testing.T) {
	t.Parallel()
	worker, err := CreateWorker()
	require.Nil(t, err)
	require.Nil(t, worker.StartServer(worker.SetMaxWorkersOption(1)))
	defer worker.StopServer()
	var wg sync.WaitGroup
	wg.Add(2)
	require.Nil(t, worker.Submit(&JobFunc{
		JobName: "failing",
		Ctx:     context.Background(),
		F: func(_ context.Context) error {
			defer wg.Done()
			return errors.New("publish failed")
		},
	}))
	require.Nil(t, worker.Submit(&JobFunc{
		JobName: "panicking",
		F: func(_ context.Context) error {
			defer wg.Done()
			panic("boom")
		},
	}))
	wg.Wait()
	// the pool survives failing jobs
	done := make(chan struct{})
	require.Nil(t, worker.Submit(&JobFunc{
		JobName: "after",
		F: func(_ context.Context) error {
			close(done)
			return nil
		},
	}))
	<-done
}
