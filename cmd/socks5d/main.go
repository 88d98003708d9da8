// Command socks5d runs the SOCKS5 proxy server, an admin HTTP surface
// exposing Prometheus metrics and a health check, and a small set of
// operational subcommands for validating configuration and preparing
// credential files.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/nikola43/socks5gate/pkg/config"
	"github.com/nikola43/socks5gate/pkg/credentials"
	domcrypto "github.com/nikola43/socks5gate/pkg/crypto"
	"github.com/nikola43/socks5gate/pkg/logger"
	"github.com/nikola43/socks5gate/pkg/metrics"
	"github.com/nikola43/socks5gate/pkg/middleware"
	"github.com/nikola43/socks5gate/pkg/socks5"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "socks5d",
		Short: "A SOCKS5 (RFC 1928/1929) proxy server",
		Long:  "socks5d runs a SOCKS5 proxy server with optional username/password authentication and a Prometheus-instrumented admin surface.",
		Run:   runServe,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}
	configCmd.AddCommand(configTestCmd())

	credentialsCmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the credentials file",
	}
	credentialsCmd.AddCommand(credentialsHashCmd(), credentialsSealCmd())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the proxy server (default when no subcommand is given)",
		Run:   runServe,
	}

	rootCmd.AddCommand(serveCmd, configCmd, credentialsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	appLog := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		AddSource:   cfg.Logging.AddSource,
		Service:     cfg.Logging.Service,
		Version:     cfg.Logging.Version,
		Environment: cfg.Logging.Environment,
	})
	logger.SetGlobal(appLog)

	auth, err := buildAuthSettings(cfg)
	if err != nil {
		appLog.LogError("failed to build auth settings", err)
		os.Exit(1)
	}

	dispatcher := socks5.NewDispatcher(auth, socks5.Timeouts{
		Greeting: cfg.Timeouts.Greeting,
		Auth:     cfg.Timeouts.Auth,
		Request:  cfg.Timeouts.Request,
		Dial:     cfg.Timeouts.Dial,
	})
	dispatcher.Observer = &observer{log: appLog}

	server := &socks5.Server{
		Addr:       cfg.Listen.Addr(),
		Dispatcher: dispatcher,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		appLog.Info("socks5 listener starting", "addr", cfg.Listen.Addr())
		serverErrCh <- server.ListenAndServe(ctx)
	}()

	var adminApp *fiber.App
	if cfg.Metrics.Enabled {
		adminApp = buildAdminApp(cfg)
		go func() {
			appLog.Info("admin http surface starting", "addr", cfg.Metrics.Addr())
			if err := adminApp.Listen(cfg.Metrics.Addr()); err != nil {
				appLog.LogError("admin http surface stopped", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErrCh:
		if err != nil {
			appLog.LogError("socks5 listener stopped unexpectedly", err)
		}
	}

	cancel()
	_ = server.Close()
	if adminApp != nil {
		_ = adminApp.ShutdownWithTimeout(5 * time.Second)
	}
}

// buildAuthSettings wires AuthConfig to a concrete credential store
// and the selected AuthMethod.
func buildAuthSettings(cfg *config.Config) (socks5.AuthSettings, error) {
	switch cfg.Auth.Method {
	case "none":
		return socks5.AuthSettings{SelectedMethod: socks5.AuthNone}, nil
	case "password":
		var masterKey []byte
		if cfg.Auth.CredentialsEncryptionKeyEnv != "" {
			encoded := os.Getenv(cfg.Auth.CredentialsEncryptionKeyEnv)
			if encoded == "" {
				return socks5.AuthSettings{}, fmt.Errorf("environment variable %s is empty", cfg.Auth.CredentialsEncryptionKeyEnv)
			}
			key, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return socks5.AuthSettings{}, fmt.Errorf("decode %s: %w", cfg.Auth.CredentialsEncryptionKeyEnv, err)
			}
			masterKey = key
		}

		store, err := credentials.LoadYAML(cfg.Auth.CredentialsFile, masterKey)
		if err != nil {
			return socks5.AuthSettings{}, fmt.Errorf("load credentials file: %w", err)
		}
		return socks5.AuthSettings{SelectedMethod: socks5.AuthPassword, Credentials: store}, nil
	default:
		return socks5.AuthSettings{}, fmt.Errorf("unknown auth method %q", cfg.Auth.Method)
	}
}

// buildAdminApp assembles the Fiber app serving /healthz and /metrics,
// optionally rate-limited via Redis.
func buildAdminApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Global().LogPanic(r)
				err = c.SendStatus(fiber.StatusInternalServerError)
			}
		}()
		return c.Next()
	})
	app.Use(metrics.RecordHTTPMetrics())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Global().LogRequest(c.Method(), c.Path(), c.IP(), c.Response().StatusCode(), time.Since(start))
		return err
	})

	if cfg.Admin.RateLimit.Enabled {
		if cfg.Redis.Enabled {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.RedisAddr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			limiter := middleware.NewRateLimiter(client, cfg.Admin.RateLimit.MaxRequests, cfg.Admin.RateLimit.WindowSize)
			app.Use(limiter.Middleware())
		} else {
			limiter := middleware.NewSimpleRateLimiter(cfg.Admin.RateLimit.MaxRequests, cfg.Admin.RateLimit.WindowSize)
			app.Use(limiter.Middleware())
		}
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get(cfg.Metrics.Path, metrics.PrometheusHandler())

	return app
}

// observer implements socks5.Observer, translating protocol events into
// structured logs and Prometheus metrics. Per-connection state (accept
// time, relayed byte counts) is tracked so durations and relay
// summaries can be reported on close.
type observer struct {
	log   *logger.Logger
	conns sync.Map // uuid.UUID -> *connState
}

type connState struct {
	accepted time.Time
	bytesOut atomic.Int64 // client -> upstream
	bytesIn  atomic.Int64 // upstream -> client
}

func (o *observer) ConnectionAccepted(id uuid.UUID, remote net.Addr) {
	o.conns.Store(id, &connState{accepted: time.Now()})
	metrics.ActiveConnections.Inc()
	o.log.LogConnection("accepted", id, remote.String())
}

func (o *observer) ConnectionClosed(id uuid.UUID, reply socks5.Reply, err error) {
	metrics.ActiveConnections.Dec()
	metrics.ConnectionsTotal.WithLabelValues(replyLabel(reply)).Inc()

	if v, ok := o.conns.LoadAndDelete(id); ok {
		st := v.(*connState)
		elapsed := time.Since(st.accepted)
		metrics.ConnectionDuration.Observe(elapsed.Seconds())
		if reply == socks5.ReplySucceeded {
			o.log.LogRelay(id, st.bytesOut.Load(), st.bytesIn.Load(), elapsed, err)
		}
	}

	if err != nil {
		o.log.LogConnection("closed", id, "", "result", replyLabel(reply), "error", err.Error())
		return
	}
	o.log.LogConnection("closed", id, "", "result", replyLabel(reply))
}

func (o *observer) AuthResult(id uuid.UUID, method socks5.AuthMethod, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	metrics.AuthAttempts.WithLabelValues(result).Inc()

	var elapsed time.Duration
	if v, found := o.conns.Load(id); found {
		elapsed = time.Since(v.(*connState).accepted)
		metrics.HandshakeDuration.WithLabelValues(method.String()).Observe(elapsed.Seconds())
	}
	o.log.LogHandshake(id, method.String(), ok, elapsed)
}

func (o *observer) DialFinished(id uuid.UUID, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.DialAttempts.WithLabelValues(result).Inc()
}

func (o *observer) BytesRelayed(id uuid.UUID, direction string, n int64) {
	metrics.BytesTransferred.WithLabelValues(direction).Add(float64(n))
	if v, ok := o.conns.Load(id); ok {
		st := v.(*connState)
		if direction == "client->upstream" {
			st.bytesOut.Add(n)
		} else {
			st.bytesIn.Add(n)
		}
	}
}

func replyLabel(r socks5.Reply) string {
	switch r {
	case socks5.ReplySucceeded:
		return "succeeded"
	case socks5.ReplySocksServerFail:
		return "server_failure"
	case socks5.ReplyConnNotAllowed:
		return "not_allowed"
	case socks5.ReplyNetUnreachable:
		return "network_unreachable"
	case socks5.ReplyHostUnreachable:
		return "host_unreachable"
	case socks5.ReplyConnRefused:
		return "connection_refused"
	case socks5.ReplyTTLExpired:
		return "ttl_expired"
	case socks5.ReplyCmdNotSupported:
		return "command_not_supported"
	case socks5.ReplyAddrTypeNotSupported:
		return "address_type_not_supported"
	default:
		return "unknown"
	}
}

func configTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Validate configuration from the environment and exit",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load()
			if err != nil {
				fmt.Fprintf(os.Stderr, "configuration test FAILED: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("configuration test OK")
			fmt.Printf("  listen:      %s\n", cfg.Listen.Addr())
			fmt.Printf("  auth method: %s\n", cfg.Auth.Method)
			if cfg.Auth.Method == "password" {
				fmt.Printf("  credentials: %s\n", cfg.Auth.CredentialsFile)
			}
			fmt.Printf("  metrics:     enabled=%v addr=%s\n", cfg.Metrics.Enabled, cfg.Metrics.Addr())
		},
	}
}

func credentialsHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash [password]",
		Short: "Hash a password with argon2id, for a credentials file's password_hash field",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			hasher := domcrypto.NewPasswordHasher()
			hash, err := hasher.HashPassword(args[0])
			if err != nil {
				log.Fatalf("hash password: %v", err)
			}
			fmt.Println(hash)
		},
	}
	return cmd
}

func credentialsSealCmd() *cobra.Command {
	var keyEnv string
	cmd := &cobra.Command{
		Use:   "seal [file]",
		Short: "Seal a plaintext credentials file for at-rest encryption, printing the sealed form",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			encoded := os.Getenv(keyEnv)
			if encoded == "" {
				log.Fatalf("environment variable %s is empty", keyEnv)
			}
			key, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				log.Fatalf("decode %s: %v", keyEnv, err)
			}

			plain, err := os.ReadFile(args[0])
			if err != nil {
				log.Fatalf("read %s: %v", args[0], err)
			}

			fc, err := domcrypto.NewFileCipher(key, domcrypto.AES256GCM)
			if err != nil {
				log.Fatalf("master key: %v", err)
			}
			sealed, err := fc.Seal(plain)
			if err != nil {
				log.Fatalf("seal: %v", err)
			}
			fmt.Println(sealed)
		},
	}
	cmd.Flags().StringVar(&keyEnv, "key-env", "CREDENTIALS_MASTER_KEY", "environment variable holding the base64-encoded master key")
	return cmd
}
