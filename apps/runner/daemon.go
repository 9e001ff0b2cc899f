package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/danileyton/epicereport-sub000/core"
	"github.com/danileyton/epicereport-sub000/core/runner"
)

var (
	parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	nowFunc = time.Now // mockable
)

type passRunner interface {
	Poll(ctx context.Context, now time.Time) ([]runner.FiringResult, error)
	RetrySweep(ctx context.Context, now time.Time) (runner.RetryStats, error)
}

// daemon triggers a polling pass followed by a retry sweep on every cron tick.
type daemon struct {
	runner passRunner
	logger core.Logger
	c      *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newDaemon(r passRunner, logger core.Logger, conf *core.Config) (*daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &daemon{
		runner: r,
		logger: logger,
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(conf.Location()),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
	if _, err := d.c.AddFunc(conf.Runner.Spec, d.run); err != nil {
		cancel()
		return nil, errors.Wrapf(err, "parsing runner spec %q", conf.Runner.Spec)
	}
	return d, nil
}

func (d *daemon) run() {
	d.wg.Add(1)
	defer d.wg.Done()
	d.tick(d.ctx)
}

func (d *daemon) tick(ctx context.Context) {
	results, err := d.runner.Poll(ctx, nowFunc())
	switch {
	case errors.Is(err, runner.ErrLocked):
		d.logger.Debug("poll skipped: " + err.Error())
		return
	case err != nil:
		d.logger.Error(fmt.Sprintf("poll failed: %v", err), err)
		return
	}
	failed := 0
	for _, res := range results {
		if res.Err != nil || res.Failed > 0 {
			failed++
		}
	}
	d.logger.Info(fmt.Sprintf("poll done: %d firings, %d with failures", len(results), failed))

	if ctx.Err() != nil {
		return
	}
	stats, err := d.runner.RetrySweep(ctx, nowFunc())
	switch {
	case errors.Is(err, runner.ErrLocked):
		d.logger.Debug("retry sweep skipped: " + err.Error())
	case err != nil:
		d.logger.Error(fmt.Sprintf("retry sweep failed: %v", err), err)
	case stats.Retried > 0 || stats.Abandoned > 0:
		d.logger.Info("retry sweep done: " + stats.String())
	}
}

func (d *daemon) Start() {
	d.c.Start()
}

// Stop stops scheduling and cancels the running pass. It waits for the pass to
// record its bookkeeping or for ctx to expire.
func (d *daemon) Stop(ctx context.Context) error {
	stopped := d.c.Stop()
	d.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
