package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/entkv/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run [script.lua]",
	Short: "Run a Lua script against the store",
	Long: `Runs a Lua script with the entity, log and utils modules available.
Without an argument the script from the configuration is used. With --serve
the process keeps running afterwards, sweeping expired records, until it is
interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serve, _ := cmd.Flags().GetBool("serve")

		path := ""
		if len(args) == 1 {
			path = args[0]
		}

		ctx := cmd.Context()
		application.Start(ctx)

		err := application.RunScript(ctx, path)
		if err != nil && !(serve && errors.Is(err, app.ErrNoScript)) {
			return err
		}

		if serve {
			log.Info().Msg("Script finished, serving until interrupted")
			application.Wait()
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("serve", false, "keep running after the script finishes")
}
