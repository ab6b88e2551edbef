package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/daryltucker/iulog/internal/output"
	"github.com/daryltucker/iulog/internal/server"
	"github.com/daryltucker/iulog/internal/source"
)

var listenOverride string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept updates over HTTP and log them to a JSON array file",
	Long: `Starts an HTTP endpoint that feeds one buffered writer:

  POST /v1/updates   JSON array of updates (or a single update)
  GET  /v1/stats     writer counters
  GET  /healthz      liveness

On SIGINT/SIGTERM the listener stops, the queue is drained and the file is closed.`,
	Example: `  iulog serve -o session --listen :8089`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listenOverride != "" {
			cfg.Listen = listenOverride
		}

		w, err := output.NewBufferedWriter(cfg.WriterOptions())
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		h := &server.Handler{Writer: w, Decoder: source.NewDecoderSize(cfg.IndexSize)}
		return server.Serve(ctx, cfg.Listen, h, cfg.ShutdownTimeout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addWriterFlags(serveCmd)
	serveCmd.Flags().StringVar(&listenOverride, "listen", "", "Listen address (default :8089)")
}
