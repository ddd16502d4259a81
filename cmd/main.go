// Zava Storefront chat relay.
//
// Relays a customer's message to the Phi-4 deployment and returns the reply,
// served over HTTP, from AWS Lambda, or once from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	envFile string
	logJSON bool
)

var rootCmd = &cobra.Command{
	Use:   "zava-chat",
	Short: "Zava Storefront chat relay",
	Long: `Relays storefront chat messages to a Phi-4 chat completion deployment.

  zava-chat serve                      Start the HTTP server
  zava-chat lambda                     Run as an AWS Lambda behind API Gateway
  zava-chat ask "do you sell lamps?"   Relay one message and print the reply`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		opts := &slog.HandlerOptions{Level: slog.LevelInfo}
		if logJSON {
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
			return
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	},
}

var (
	serveAddr           string
	serveRequestTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Serve API Gateway proxy events",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context(), envFile)
		if err != nil {
			return err
		}
		lambda.Start(a.handler.Handle)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask MESSAGE",
	Short: "Relay one message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		if strings.TrimSpace(message) == "" {
			return errors.New("message cannot be empty")
		}
		a, err := buildApp(cmd.Context(), envFile)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), a.relay.Reply(cmd.Context(), message))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before the environment")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "", "Log as JSON")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default $ADDR, :$PORT or :8080)")
	serveCmd.Flags().DurationVar(&serveRequestTimeout, "request-timeout", 0, "Per-request timeout for the HTTP server (0 disables)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(lambdaCmd)
	rootCmd.AddCommand(askCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, envFile)
	if err != nil {
		return err
	}
	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler.RoutesWithTimeout(serveRequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("chat relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("shutting down chat relay")
	return srv.Shutdown(shutdownCtx)
}
