package commands

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stockpile-dev/stockpile/internal/dash"
)

// NewDashCmd creates the dash command
func NewDashCmd(version string, opts ...Option) *cobra.Command {
	var addr string
	var open bool

	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Serve the admin console until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := newEnv(append([]Option{withDefaultLogLevel("info")}, opts...))
			if err != nil {
				return err
			}
			defer r.close()

			if addr == "" {
				addr = r.cfg.Dash.Addr
			}

			server, err := dash.New(r.provider, dash.Options{
				Addr:         addr,
				LoginPath:    r.cfg.Session.LoginPath,
				HomePath:     r.cfg.Session.HomePath,
				AllowOrigins: r.cfg.Dash.AllowOrigins,
				Version:      version,
				Logger:       *r.log,
				Metrics:      r.metrics,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// the console shows a placeholder until this resolves
			go r.provider.Bootstrap(ctx)

			dashboardURL := fmt.Sprintf("http://%s", addr)
			fmt.Fprintf(r.out, "Admin console: %s\n", dashboardURL)
			if open {
				if err := openBrowser(dashboardURL); err != nil {
					fmt.Fprintf(r.out, "Failed to open browser: %v\nPlease visit: %s\n", err, dashboardURL)
				}
			}

			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (or set STOCKPILE_DASH_ADDR)")
	cmd.Flags().BoolVar(&open, "open", false, "Open the console in the default browser")

	return cmd
}

// openBrowser opens the URL in the default browser
func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}
