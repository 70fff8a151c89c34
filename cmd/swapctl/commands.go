package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/urfave/cli/v2"

	"github.com/comit-network/swapharness/internal/ledger"
	"github.com/comit-network/swapharness/internal/poll"
	"github.com/comit-network/swapharness/pkg/cnd"
	"github.com/comit-network/swapharness/pkg/siren"
)

var yellowBold = color.New(color.FgHiYellow, color.Bold)

var jsonFlag = &cli.BoolFlag{
	Name:  "json",
	Usage: "Prints the raw representation",
}

func newTable(columns ...any) table.Table {
	tbl := table.New(columns...)
	tbl.WithHeaderFormatter(color.New(color.FgGreen, color.Underline).SprintfFunc())
	tbl.WithFirstColumnFormatter(color.New(color.FgYellow).SprintfFunc())
	return tbl
}

func printJson(value any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(value); err != nil {
		fmt.Println("Could not encode: " + err.Error())
	}
}

func requireNArgs(n int, action cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if ctx.NArg() != n {
			return fmt.Errorf("expected %d arguments, got %d", n, ctx.NArg())
		}
		return action(ctx)
	}
}

var infoCommand = &cli.Command{
	Name:   "info",
	Usage:  "Shows the peer id and listen addresses of cnd",
	Action: info,
}

func info(ctx *cli.Context) error {
	response, err := getApi(ctx).GetInfo(ctx.Context)
	if err != nil {
		return err
	}
	printJson(response)
	return nil
}

var listSwapsCommand = &cli.Command{
	Name:   "swaps",
	Usage:  "Lists all swaps",
	Action: listSwaps,
	Flags:  []cli.Flag{jsonFlag},
}

func listSwaps(ctx *cli.Context) error {
	list, err := getApi(ctx).GetSwaps(ctx.Context)
	if err != nil {
		return err
	}
	if ctx.Bool("json") {
		printJson(list)
		return nil
	}

	tbl := newTable("Href", "Protocol", "Status")
	for _, swap := range list.Entities {
		href, _ := swap.SelfLink()
		tbl.AddRow(href, swap.Properties.String("protocol"), swap.Properties.String("status"))
	}
	tbl.Print()
	return nil
}

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "Shows status, state and available actions of a swap",
	ArgsUsage: "href",
	Action:    requireNArgs(1, show),
	Flags:     []cli.Flag{jsonFlag},
}

func show(ctx *cli.Context) error {
	entity, err := getApi(ctx).Get(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	if ctx.Bool("json") {
		printJson(entity)
		return nil
	}

	if _, err := yellowBold.Println("Status: " + entity.Status()); err != nil {
		return err
	}

	state := newTable("Component", "Status")
	for _, component := range []string{"communication", "alpha_ledger", "beta_ledger"} {
		state.AddRow(component, entity.State().String(component, "status"))
	}
	state.Print()

	fmt.Println()
	actions := newTable("Action", "Method", "Href", "Fields")
	for _, action := range entity.Actions {
		var fields []string
		for _, field := range action.Fields {
			fields = append(fields, field.Name)
		}
		actions.AddRow(action.Name, action.HttpMethod(), action.Href, strings.Join(fields, ", "))
	}
	actions.Print()
	return nil
}

var waitCommand = &cli.Command{
	Name:      "wait",
	Usage:     "Waits until a property of a swap has a value",
	ArgsUsage: "href",
	Action:    requireNArgs(1, wait),
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "path",
			Usage:    "Dot separated path of the property, e.g. state.alpha_ledger.status",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "equals",
			Usage:    "Value the property has to have",
			Required: true,
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: poll.DefaultInterval * 50,
			Usage: "How long to wait",
		},
	},
}

func wait(ctx *cli.Context) error {
	api := getApi(ctx)
	href := ctx.Args().First()
	path := strings.Split(ctx.String("path"), ".")
	expected := ctx.String("equals")

	fetch := func(ctx context.Context) (*siren.Entity, error) {
		return api.Get(ctx, href)
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond)
	s.Suffix = " Waiting for " + ctx.String("path") + " to be " + expected + "..."
	s.Start()
	_, err := poll.Until(ctx.Context, poll.DefaultPoller(), fetch, func(entity *siren.Entity) bool {
		value, ok := entity.Properties.Lookup(path...)
		return ok && fmt.Sprint(value) == expected
	}, ctx.Duration("timeout"))
	s.Stop()
	if err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Println(ctx.String("path") + " is " + expected)
	return nil
}

var doCommand = &cli.Command{
	Name:      "do",
	Usage:     "Executes an action of a swap and prints the ledger action it returns without executing it",
	ArgsUsage: "href [action]",
	Action:    do,
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "field",
			Usage: "Value of an action field as name=value",
		},
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "Do not ask for confirmation",
		},
	},
}

// chooseAction asks which of the offered actions should be executed.
func chooseAction(entity *siren.Entity) (siren.ActionKind, error) {
	names := entity.ActionNames()
	if len(names) == 0 {
		return "", siren.ErrActionNotOffered
	}
	slices.Sort(names)
	var name string
	prompt := &survey.Select{
		Message: "Which action should be executed?",
		Options: names,
	}
	if err := survey.AskOne(prompt, &name); err != nil {
		return "", err
	}
	return siren.ActionKind(name), nil
}

func do(ctx *cli.Context) error {
	if ctx.NArg() < 1 || ctx.NArg() > 2 {
		return fmt.Errorf("expected 1 or 2 arguments, got %d", ctx.NArg())
	}
	api := getApi(ctx)
	entity, err := api.Get(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}

	kind := siren.ActionKind(ctx.Args().Get(1))
	if kind == "" {
		if kind, err = chooseAction(entity); err != nil {
			return err
		}
	}
	action, err := entity.FindAction(kind)
	if err != nil {
		return err
	}

	values := make(cnd.FieldValues)
	for _, field := range ctx.StringSlice("field") {
		name, value, ok := strings.Cut(field, "=")
		if !ok {
			return fmt.Errorf("invalid field %s, expected name=value", field)
		}
		values[name] = value
	}

	if !ctx.Bool("yes") {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Execute %s (%s %s)?", action.Name, action.HttpMethod(), action.Href),
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	response, err := api.Execute(ctx.Context, action, values)
	if err != nil {
		return err
	}
	if err := cnd.ExpectSuccess(response); err != nil {
		return err
	}

	ledgerAction, err := ledger.Parse(response.Body)
	if err != nil {
		return err
	}
	if ledgerAction == nil {
		color.New(color.FgGreen, color.Bold).Printf("%s returned %d without a ledger action\n", action.Name, response.StatusCode)
		return nil
	}
	if _, err := yellowBold.Printf("Ledger action %s on %s\n", ledgerAction.Type(), ledgerAction.Ledger()); err != nil {
		return err
	}
	printJson(ledgerAction)
	return nil
}
