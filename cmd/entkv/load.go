package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/entkv/internal/entity"
)

var loadCmd = &cobra.Command{
	Use:   "load <base/name> <id>",
	Short: "Load one entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		canon := entity.ParseCanon(args[0])

		e, err := application.Store().Load(cmd.Context(), canon, args[1])
		if err != nil {
			return err
		}
		if e == nil {
			return fmt.Errorf("%s %q not found", canon, args[1])
		}

		printJSON(e.Map())
		return nil
	},
}
