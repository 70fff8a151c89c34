package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/comit-network/swapharness/internal/build"
	"github.com/comit-network/swapharness/pkg/cnd"
)

func main() {
	app := cli.NewApp()
	app.Name = "swapctl"
	app.Usage = "Inspect and drive swaps of a cnd instance"
	app.Version = build.GetVersion()
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "cnd",
			Value:   "http://127.0.0.1:8000",
			Usage:   "URL of the cnd HTTP API",
			EnvVars: []string{"SWAPCTL_CND"},
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Value: 10 * time.Second,
			Usage: "Timeout of a single HTTP request",
		},
	}
	app.Commands = []*cli.Command{
		infoCommand,
		listSwapsCommand,
		showCommand,
		waitCommand,
		doCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}

func getApi(ctx *cli.Context) *cnd.Api {
	return &cnd.Api{
		URL:    ctx.String("cnd"),
		Client: http.Client{Timeout: ctx.Duration("request-timeout")},
	}
}
