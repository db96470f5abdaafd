package main

import (
	"github.com/spf13/cobra"

	"multitrack/internal/library"
	"multitrack/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "楽曲ファイル配信サーバーを起動する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()

			// コマンドラインオプションで設定を上書き
			if host != "" {
				cfg.Server.Host = host
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			srv := server.New(cfg, library.New(cfg.Library.Root), ctx.loggerValue())
			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "サーバーのポート (デフォルト: 8080)")

	return cmd
}
