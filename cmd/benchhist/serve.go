package main

import (
	"os/signal"
	"syscall"

	"benchhist/internal/web"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func initServeCmd(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ingestion and query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			return web.NewServer(a.pipeline, a.metrics, viper.GetString("serve.addr")).Start(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "Listen address (default :8080)")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}
