package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2lambda123/facebook-prophet/internal/server"
)

var (
	serveHost  string
	servePort  int
	serveToken string
	serveOpen  bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve fit and sampling sessions over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	defaultHost := envOrDefault("PROPHET_SERVER_HOST", "127.0.0.1")
	defaultPort := envIntOrDefault("PROPHET_SERVER_PORT", 8080)
	defaultToken := os.Getenv("PROPHET_SERVER_TOKEN")
	defaultOpen := envBoolOrDefault("PROPHET_SERVER_OPEN", false)

	serveCmd.Flags().StringVarP(&serveHost, "host", "H", defaultHost, "Host/IP to bind to")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", defaultPort, "Port number")
	serveCmd.Flags().StringVarP(&serveToken, "token", "t", defaultToken, "Authentication token")
	serveCmd.Flags().BoolVar(&serveOpen, "open", defaultOpen, "Allow any CORS origin and skip the token check on public hosts")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	host := strings.TrimSpace(serveHost)
	if host == "" {
		host = "127.0.0.1"
	}
	if servePort < 1 || servePort > 65535 {
		return fmt.Errorf("invalid port number: %d", servePort)
	}
	if !isLocalhost(host) && serveToken == "" && !serveOpen {
		return errors.New("token required when binding to non-localhost address (use --token or --open)")
	}
	if !isLocalhost(host) && serveOpen && serveToken == "" {
		logger.Warn("server exposed without authentication (--open flag used)")
	}

	printServeInfo(cmd, host, servePort, serveToken)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.StartServer(ctx, server.Options{
		Host:       host,
		Port:       servePort,
		Token:      serveToken,
		Open:       serveOpen,
		NewBackend: newSessionBackend,
		Logger:     logger,
	})
}

func printServeInfo(cmd *cobra.Command, host string, port int, token string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting prophet server on %s:%d...\n", host, port)
	fmt.Fprintln(out, "Endpoints:")
	fmt.Fprintln(out, "  POST /fit          - Point estimate")
	fmt.Fprintln(out, "  POST /sample       - Posterior samples")
	fmt.Fprintln(out, "  GET  /runs         - Run history")
	fmt.Fprintln(out, "  GET  /runs/:id     - One run")
	fmt.Fprintln(out, "  GET  /metrics      - Prometheus metrics")
	if strings.TrimSpace(token) != "" {
		fmt.Fprintln(out, "Authentication: Bearer token required")
	} else {
		fmt.Fprintln(out, "Authentication: None (use --token to enable)")
	}
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Press Ctrl+C to stop")
	fmt.Fprintln(out, "")
}

func isLocalhost(host string) bool {
	switch host {
	case "127.0.0.1", "localhost", "::1":
		return true
	default:
		return false
	}
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envBoolOrDefault(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
