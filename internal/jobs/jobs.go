// Package jobs runs background work that can be canceled and waited on during shutdown.
package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noahsadir/courseman/internal/logging"
)

// A Job tracks one background task. The task watches Ctx (or Canceled) and
// calls Finish once it has stopped.
type Job struct {
	Name   string
	Ctx    context.Context
	Logger zerolog.Logger
	cancel func()
	done   chan struct{}
}

func New(name string) *Job {
	logger := logging.With().Str("job", name).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	ctx = logging.AttachLoggerToContext(&logger, ctx)
	return &Job{
		Name:   name,
		Ctx:    ctx,
		Logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel asks the job to stop. Called from outside the job.
func (j *Job) Cancel() {
	j.cancel()
}

// Canceled is closed once Cancel has been called.
func (j *Job) Canceled() <-chan struct{} {
	return j.Ctx.Done()
}

// Finish marks the job's work as complete. Called by the job itself, exactly once.
func (j *Job) Finish() *Job {
	close(j.done)
	return j
}

// Finished is closed once Finish has been called.
func (j *Job) Finished() <-chan struct{} {
	return j.done
}

// Jobs is a set of jobs that shut down together.
type Jobs []*Job

// CancelAndWait cancels every job and waits for all of them to finish or for
// timeout to pass. It returns the names of jobs still running at the deadline.
func (jobs Jobs) CancelAndWait(timeout time.Duration) []string {
	allDone := make(chan struct{})
	for _, job := range jobs {
		job.Cancel()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		for _, job := range jobs {
			<-job.Finished()
		}
		close(allDone)
	}()

	select {
	case <-timer.C:
		return jobs.ListUnfinished()
	case <-allDone:
		return nil
	}
}

func (jobs Jobs) ListUnfinished() []string {
	unfinished := []string{}
	for _, job := range jobs {
		select {
		case <-job.Finished():
		default:
			unfinished = append(unfinished, job.Name)
		}
	}
	return unfinished
}
