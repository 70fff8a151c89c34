package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/fatih/color"
	"github.com/rodaine/table"

	"github.com/comit-network/swapharness/internal/build"
	"github.com/comit-network/swapharness/internal/config"
	"github.com/comit-network/swapharness/internal/logger"
	"github.com/comit-network/swapharness/internal/scenario"
	"github.com/comit-network/swapharness/internal/utils"
)

func main() {
	dataDir, err := utils.GetDefaultDataDir()
	if err != nil {
		fmt.Println("Could not get default data directory: " + err.Error())
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(dataDir, os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	if cfg.Help.ShowVersion {
		fmt.Println(build.GetVersion())
		fmt.Println("Built with: " + runtime.Version())
		os.Exit(0)
	}

	logger.Init(cfg.Log)
	logger.Infof("Starting swapharness %s with data dir %s", build.GetVersion(), cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()

	if err != nil {
		printFailure(err)
		logger.Sync()
		os.Exit(1)
	}
	color.New(color.FgGreen, color.Bold).Println("Scenario " + cfg.Scenario.Name + " passed")
	logger.Sync()
}

func run(ctx context.Context, cfg *config.Config) error {
	env, err := setup(ctx, cfg)
	defer func() {
		if closeErr := env.Close(); closeErr != nil {
			logger.Warnf("Could not clean up: %v", closeErr)
		}
	}()
	if err != nil {
		return err
	}

	builder := scenario.Library[cfg.Scenario.Name]
	amounts, err := cfg.Scenario.Amounts(cfg.Ethereum.TokenContract)
	if err != nil {
		return err
	}
	swap, err := builder(env.Parties(), amounts, cfg.Network)
	if err != nil {
		return err
	}
	swap.Timeouts = cfg.Timeouts

	if err := env.Fund(ctx, amounts); err != nil {
		return err
	}

	locations, err := swap.Run(ctx)
	printLocations(locations)
	return err
}

func printLocations(locations *scenario.Locations) {
	if locations == nil {
		return
	}
	tbl := table.New("Actor", "Swap")
	tbl.WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc())
	tbl.WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())
	for actor, location := range locations.All() {
		tbl.AddRow(actor, location)
	}
	tbl.Print()
}

func printFailure(err error) {
	red := color.New(color.FgRed, color.Bold)
	var stepErr *scenario.StepError
	if !errors.As(err, &stepErr) {
		red.Println("Could not run scenario: " + err.Error())
		return
	}

	red.Printf("Scenario failed with %s\n", stepErr.Kind)
	tbl := table.New("Step", "Actor", "Phase", "Error")
	tbl.WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc())
	step := "setup"
	if stepErr.Index >= 0 {
		step = fmt.Sprint(stepErr.Index)
	}
	tbl.AddRow(step, stepErr.Actor, stepErr.Phase, stepErr.Err)
	tbl.Print()

	if stepErr.Last != nil {
		fmt.Println("\nLast representation:\n" + stepErr.Last.String())
	}
	if stepErr.Response != nil {
		fmt.Println("\nLast response:\n" + stepErr.Response.String())
	}
}
