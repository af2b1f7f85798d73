package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dokzlo13/entkv/internal/entity"
	"github.com/dokzlo13/entkv/internal/store"
)

var saveCmd = &cobra.Command{
	Use:   "save <base/name> <fields-json>",
	Short: "Save an entity",
	Example: `  entkv save sys/user '{"id":1,"data":111}'
  entkv save session '{"user":"1","seen":"2024-01-02T03:04:05Z"}' --date seen --expire 30m`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dates, _ := cmd.Flags().GetStringSlice("date")
		id, _ := cmd.Flags().GetString("id")

		fields, err := parseFields(args[1], dates)
		if err != nil {
			return err
		}

		opts := store.SaveOptions{ID: id}
		if cmd.Flags().Changed("expire") {
			ttl, _ := cmd.Flags().GetDuration("expire")
			opts.Expire = &ttl
		}
		if s, _ := cmd.Flags().GetString("expire-at"); s != "" {
			at, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return fmt.Errorf("invalid --expire-at: %w", err)
			}
			opts.ExpireAt = &at
		}

		e, err := application.Store().Save(cmd.Context(), entity.FromMap(entity.ParseCanon(args[0]), fields), opts)
		if err != nil {
			return err
		}

		printJSON(e.Map())
		return nil
	},
}

func init() {
	saveCmd.Flags().String("id", "", "identifier to use when the fields have none")
	saveCmd.Flags().Duration("expire", 0, "time to live, overriding configured expiry (0 disables expiry)")
	saveCmd.Flags().String("expire-at", "", "absolute expiry time (RFC 3339)")
	saveCmd.Flags().StringSlice("date", nil, "field holding an RFC 3339 date (repeatable)")
}
