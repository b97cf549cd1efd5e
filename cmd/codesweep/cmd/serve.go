package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/web"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session status API",
	Long: `Start a read-only HTTP API over the checkpoint store:
GET /api/sessions, GET /api/sessions/{id}, GET /health.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveHost, "host", "", "bind host (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "bind port (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	deps, err := initDeps()
	if err != nil {
		return exitError(err)
	}
	defer deps.Close()

	cfg := web.DefaultConfig()
	cfg.Host = deps.Config.Serve.Host
	cfg.Port = deps.Config.Serve.Port
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	server := web.New(cfg, deps.Store, deps.Logger)
	if err := server.Start(); err != nil {
		return exitError(err)
	}
	printf("status API listening on http://%s", server.Addr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return server.Shutdown(cmd.Context())
}
