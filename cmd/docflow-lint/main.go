// Command docflow-lint validates a directory of workflow definition
// files without starting the API. Intended for CI pipelines.
package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/docflow/docflow/pkg/log"
	"github.com/docflow/docflow/pkg/registry"
)

func main() {
	command := &cli.Command{
		Name:  "docflow-lint",
		Usage: "Validate workflow definition files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "definitions-path",
				Usage:    "Directory containing workflow definition JSON files",
				Required: true,
				Sources:  cli.EnvVars("DEFINITIONS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			reg := registry.NewRegistry(log.WithModule("lint"))

			err := reg.LoadDir(command.String("definitions-path"))
			if err != nil {
				return err
			}

			for _, recordType := range reg.RecordTypes() {
				definition, err := reg.DefinitionFor(recordType)
				if err != nil {
					return err
				}

				fmt.Printf("%s: %d states, %d transitions, initial %q\n",
					recordType,
					len(definition.States),
					len(definition.Transitions),
					definition.InitialState().Name)

				for _, name := range definition.Unreachable {
					fmt.Printf("  warning: state %q is unreachable from the initial state\n", name)
				}
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
