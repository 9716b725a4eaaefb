package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Config string `help:"Path to the YAML configuration file." type:"path" env:"FINALIZE_CONFIG"`

	Run        RunCmd        `cmd:"" help:"Finalize a completed workflow execution."`
	ResolveTag ResolveTagCmd `cmd:"" name:"resolve-tags" help:"Render the tag definitions of an entity."`
	ReapLocks  ReapLocksCmd  `cmd:"" name:"reap-locks" help:"Delete expired lock leases."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("finalize"),
		kong.Description("Finalize completed workflow executions: tags and analytics."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := kctx.Run(&Globals{ctx: ctx, configPath: cli.Config})
	if err != nil {
		fmt.Fprintf(os.Stderr, "finalize: %v\n", err)
		os.Exit(1)
	}
}
