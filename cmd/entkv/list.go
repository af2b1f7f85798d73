package main

import (
	"github.com/spf13/cobra"

	"github.com/dokzlo13/entkv/internal/entity"
)

var listCmd = &cobra.Command{
	Use:   "list <base/name>",
	Short: "List entities of a type",
	Example: `  entkv list sys/user
  entkv list sys/user -f data=111 -f group=admins`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("field")

		filter, err := parseFilter(pairs)
		if err != nil {
			return err
		}

		list, err := application.Store().List(cmd.Context(), entity.ParseCanon(args[0]), filter)
		if err != nil {
			return err
		}

		printEntities(list)
		return nil
	},
}

func init() {
	listCmd.Flags().StringArrayP("field", "f", nil, "filter by field (key=value, repeatable)")
}
