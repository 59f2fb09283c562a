package jobs

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/noahsadir/courseman/internal/oops"
)

// Task is one unit of periodic cleanup. Run returns how many rows or entries it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// SweeperConfig controls a Sweeper's cadence.
type SweeperConfig struct {
	// Interval is the wait between successful passes.
	Interval time.Duration
	// RetryMin and RetryMax bound the backoff after a failed pass.
	RetryMin time.Duration
	RetryMax time.Duration
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.RetryMin <= 0 {
		c.RetryMin = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Minute
	}
	if c.RetryMax < c.RetryMin {
		c.RetryMax = c.RetryMin
	}
	return c
}

// Sweeper starts a job that runs every task once per interval until canceled.
// A pass runs every task even when an earlier one fails. After a failing pass
// the next one is scheduled by exponential backoff instead of the interval.
func Sweeper(name string, cfg SweeperConfig, tasks ...Task) *Job {
	cfg = cfg.withDefaults()
	job := New(name)
	go func() {
		defer func() {
			job.Logger.Debug().Msg("sweeper shut down")
			job.Finish()
		}()

		boff := backoff.Backoff{
			Min:    cfg.RetryMin,
			Max:    cfg.RetryMax,
			Factor: 2,
			Jitter: true,
		}

		for {
			wait := cfg.Interval
			if failed := runPass(job, tasks); failed > 0 {
				wait = boff.Duration()
				job.Logger.Warn().
					Int("failed tasks", failed).
					Dur("retrying after", wait).
					Msg("sweep pass had failures")
			} else {
				boff.Reset()
			}

			timer := time.NewTimer(wait)
			select {
			case <-job.Canceled():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
	return job
}

func runPass(job *Job, tasks []Task) int {
	failed := 0
	for _, task := range tasks {
		if job.Ctx.Err() != nil {
			return failed
		}
		n, err := runTask(job.Ctx, task)
		if err != nil {
			failed++
			job.Logger.Error().Err(err).Str("task", task.Name).Msg("sweep task failed")
			continue
		}
		if n > 0 {
			job.Logger.Debug().Str("task", task.Name).Int64("removed", n).Msg("sweep task done")
		}
	}
	return failed
}

// runTask turns a panicking task into a failed one so the sweeper keeps running.
func runTask(ctx context.Context, task Task) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = oops.New(nil, "panic in sweep task %q: %v", task.Name, r)
		}
	}()
	return task.Run(ctx)
}
