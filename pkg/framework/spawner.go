package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Wait when a second stop signal arrives.
var ErrForcedExit = errors.New("forced exit")

// Spawner runs the tasks of one half and collects their errors. A
// failing task is logged and does not stop the others unless
// StopOnError is set.
type Spawner struct {
	StopOnError bool

	ctx    context.Context
	cancel context.CancelFunc
	errCh  chan error
	exitCh chan struct{}

	lock  sync.Mutex
	tasks []string
}

// NewSpawner creates a spawner with a default background context.
func NewSpawner() *Spawner {
	return NewSpawnerWith(context.Background())
}

// NewSpawnerWith creates a spawner with a specified parent context.
func NewSpawnerWith(ctx context.Context) *Spawner {
	ctx, cancel := context.WithCancel(ctx)
	return &Spawner{
		ctx:    ctx,
		cancel: cancel,
		errCh:  make(chan error, 1),
		exitCh: make(chan struct{}),
	}
}

// Context returns the context passed to spawned tasks.
func (s *Spawner) Context() context.Context {
	return s.ctx
}

// Stop cancels all tasks.
func (s *Spawner) Stop() {
	s.cancel()
}

// HandleSignals handles CtrlC and SIGTERM from the system.
func (s *Spawner) HandleSignals() *Spawner {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		glog.Info("stop requested")
		s.cancel()
		<-sigCh
		glog.Error("stop requested again, force exit")
		close(s.exitCh)
	}()
	return s
}

// Go spawns tasks.
func (s *Spawner) Go(tasks ...Task) *Spawner {
	for _, task := range tasks {
		s.lock.Lock()
		name := TaskName(task, strconv.Itoa(len(s.tasks)))
		s.tasks = append(s.tasks, name)
		s.lock.Unlock()
		glog.V(4).Infof("start task[%s]", name)
		go s.run(task, name)
	}
	return s
}

func (s *Spawner) run(task Task, name string) {
	glog.V(4).Infof("task[%s] started", name)
	err := task.Run(s.ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		glog.Errorf("task[%s] failed: %v", name, err)
		err = &TaskError{Task: name, Err: err}
		if s.StopOnError {
			s.cancel()
		}
	} else {
		err = nil
	}
	glog.V(4).Infof("task[%s] stopped", name)
	s.errCh <- err
}

// Tasks returns the names of spawned tasks in spawn order.
func (s *Spawner) Tasks() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.tasks...)
}

// Wait waits until all tasks stop and aggregates errors.
func (s *Spawner) Wait() error {
	var errs AggregatedError
	for range s.Tasks() {
		select {
		case <-s.exitCh:
			return ErrForcedExit
		case err := <-s.errCh:
			errs.Add(err)
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel runs a func with doesn't accept a context.
// cancel is called only when the context is canceled.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()
	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// RunWithContext is simplified form with no cancel callback.
func RunWithContext(ctx context.Context, fn func() error) error {
	return RunWithContextCancel(ctx, nil, fn)
}

// RunWithContextCloser ensures closer.Close is called either on cancel
// or when fn returns.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var closed bool
	err := RunWithContextCancel(ctx, func() {
		closer.Close()
		closed = true
	}, fn)
	if !closed {
		closer.Close()
	}
	return err
}
