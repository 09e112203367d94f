// Package scheduler runs background tasks one at a time on a single worker.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("pylon.scheduler")

var ErrStopped = errors.New("scheduler: stopped")

type Task struct {
	Name    string
	Execute func(ctx context.Context) error
}

type Scheduler struct {
	taskQueue chan Task
	stopChan  chan struct{}
	sealed    chan struct{}
	done      chan struct{}

	mu       sync.RWMutex
	stopped  bool
	started  atomic.Bool
	stopOnce sync.Once
	periodic sync.WaitGroup
}

// NewScheduler creates a new Scheduler with the specified queue size.
func NewScheduler(queueSize int) *Scheduler {
	return &Scheduler{
		taskQueue: make(chan Task, queueSize),
		stopChan:  make(chan struct{}),
		sealed:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// RunScheduler starts the worker. Tasks run with ctx.
func (s *Scheduler) RunScheduler(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		for {
			select {
			case task := <-s.taskQueue:
				s.execute(ctx, task)
			case <-s.stopChan:
				// No task can be queued once sealed.
				<-s.sealed
				for {
					select {
					case task := <-s.taskQueue:
						log.Debugf("draining task: %s", task.Name)
						s.execute(ctx, task)
					default:
						return
					}
				}
			}
		}
	}()
}

func (s *Scheduler) execute(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	log.Debugf("executing %s task", task.Name)
	if err := task.Execute(ctx); err != nil {
		log.Errorf("task %s failed: %v", task.Name, err)
	}
}

// SchedulePeriodicTask queues task every interval until the scheduler
// stops. A tick is skipped when the queue is full.
func (s *Scheduler) SchedulePeriodicTask(interval time.Duration, task Task) {
	s.periodic.Add(1)
	go func() {
		defer s.periodic.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case s.taskQueue <- task:
					log.Debugf("scheduled %s", task.Name)
				case <-s.stopChan:
					return
				default:
					log.Warningf("skipped scheduling %s, queue is full", task.Name)
				}
			case <-s.stopChan:
				return
			}
		}
	}()
}

// Schedule queues a task, waiting for room in the queue.
func (s *Scheduler) Schedule(task Task) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped {
		return ErrStopped
	}
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.stopChan:
		return ErrStopped
	}
}

// StopScheduler stops periodic tasks, runs the tasks still queued and
// waits for the worker to exit.
func (s *Scheduler) StopScheduler() {
	s.stopOnce.Do(func() {
		log.Info("stopping scheduler")
		close(s.stopChan)
		s.periodic.Wait()

		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		close(s.sealed)

		if s.started.Load() {
			<-s.done
		}
		log.Info("scheduler stopped")
	})
}
