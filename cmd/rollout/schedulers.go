package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/rollout/internal/accuracy"
	"github.com/samcharles93/rollout/internal/multiturn"
)

func schedulersCmd() *cli.Command {
	return &cli.Command{
		Name:  "schedulers",
		Usage: "List registered schedulers and scorers",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Println("schedulers:")
			for _, name := range multiturn.DefaultRegistry().Names() {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println("scorers:")
			for _, name := range accuracy.Names() {
				fmt.Printf("  %s\n", name)
			}
			return nil
		},
	}
}
