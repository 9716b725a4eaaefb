package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	finalize "github.com/goliatone/go-finalize"
	"github.com/goliatone/go-finalize/cron"
	"github.com/goliatone/go-finalize/lock"
	"github.com/goliatone/go-finalize/render"
)

type RunCmd struct {
	ExecutionID string `name:"execution-id" required:"" help:"Execution to finalize."`
	AppID       string `name:"app-id" required:"" help:"Application owning the execution."`
}

func (c *RunCmd) Run(g *Globals) error {
	a, err := bootstrap(g)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.finalizer.Finalize(g.ctx, finalize.FinalizeRequest{
		ExecutionID: c.ExecutionID,
		AppID:       c.AppID,
	})
	if encErr := printJSON(report); encErr != nil {
		return encErr
	}
	return err
}

type ResolveTagCmd struct {
	EntityID string            `name:"entity-id" required:"" help:"Entity whose tag definitions are rendered."`
	Var      map[string]string `name:"var" help:"Renderer variable as path=value, repeatable."`
}

func (c *ResolveTagCmd) Run(g *Globals) error {
	a, err := bootstrap(g)
	if err != nil {
		return err
	}
	defer a.Close()

	resolved, err := a.resolver.Resolve(g.ctx, c.EntityID, render.NewVariableRenderer(c.Var))
	if err != nil {
		return err
	}
	return printJSON(resolved)
}

type ReapLocksCmd struct {
	Once bool `help:"Reap once and exit instead of running on the configured schedule."`
}

func (c *ReapLocksCmd) Run(g *Globals) error {
	a, err := bootstrap(g)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := cron.NewScheduler(cron.WithLogger(a.logger))
	reaper := lock.NewReaper(a.locker, scheduler, a.cfg.Lock.ReapSchedule, a.logger)
	if c.Once {
		n, err := reaper.RunOnce(g.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "reaped %d expired leases\n", n)
		return nil
	}

	if _, err := reaper.Schedule(); err != nil {
		return err
	}
	if err := scheduler.Start(g.ctx); err != nil {
		return err
	}
	a.logger.Info("lease reaper running schedule=%s", a.cfg.Lock.ReapSchedule)
	<-g.ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(g.ctx), 10*time.Second)
	defer cancel()
	return scheduler.Stop(stopCtx)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
