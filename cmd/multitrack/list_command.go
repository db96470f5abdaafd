package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"multitrack/internal/library"
	"multitrack/internal/player"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [dir]",
		Short: "サーバー上のディレクトリにある音声ファイルを一覧表示する",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			dir := cfg.Player.Dir
			if len(args) == 1 {
				dir = args[0]
			}

			client := player.NewClient(cfg.Player.ServerURL, nil)
			names, err := client.ListTracks(cmd.Context(), dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintf(out, "%s: 音声ファイルがありません\n", dir)
				return nil
			}

			rows := make([][]string, 0, len(names))
			for i, name := range names {
				rows = append(rows, []string{strconv.Itoa(i), name, library.ContentType(name)})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Track", "Type"}, rows, []columnAlignment{alignRight}))
			return nil
		},
	}
}
