package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/entkv/internal/entity"
	"github.com/dokzlo13/entkv/internal/store"
)

var removeCmd = &cobra.Command{
	Use:   "remove <base/name>",
	Short: "Remove entities of a type",
	Example: `  entkv remove sys/user -f id=1
  entkv remove sys/user --all`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		pairs, _ := cmd.Flags().GetStringArray("field")

		if all == (len(pairs) > 0) {
			return errors.New("specify either --all or at least one --field filter")
		}

		filter, err := parseFilter(pairs)
		if err != nil {
			return err
		}

		n, err := application.Store().Remove(cmd.Context(), entity.ParseCanon(args[0]), store.RemoveQuery{All: all, Filter: filter})
		if err != nil {
			return err
		}

		fmt.Printf("removed %d\n", n)
		return nil
	},
}

func init() {
	removeCmd.Flags().Bool("all", false, "remove every entity of the type")
	removeCmd.Flags().StringArrayP("field", "f", nil, "filter by field (key=value, repeatable)")
}
