// Command synelgw runs a Synel push gateway.
//
// It accepts terminal-initiated connections, forwards data records and host
// queries to NATS when configured, and serves a small admin API for
// inspecting sessions and querying terminals on demand.
//
//	synelgw -config /etc/synelgw.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arloliu/go-synel/forward"
	"github.com/arloliu/go-synel/gatekeeper"
	"github.com/arloliu/go-synel/logger"
	"github.com/arloliu/go-synel/synel"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "synelgw: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to the TOML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath, os.Getenv)
	if err != nil {
		return err
	}

	log := logger.NewSlog(cfg.LogLevel, false)
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate, closeGate, err := newGatekeeper(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeGate()

	handler, closeForwarder, err := newHandler(cfg, log)
	if err != nil {
		return err
	}
	defer closeForwarder()

	lcfg, err := synel.NewListenerConfig(cfg.ListenHost, cfg.ListenPort,
		synel.WithIdleTimeout(cfg.IdleTimeout),
		synel.WithLogger(log),
	)
	if err != nil {
		return err
	}

	listener, err := synel.NewListener(lcfg, handler)
	if err != nil {
		return err
	}

	if err := listener.Start(ctx); err != nil {
		return err
	}
	defer listener.Stop()

	dial := func(ctx context.Context, host string, port int) (*synel.Client, error) {
		ccfg, err := synel.NewConnectionConfig(host, port,
			synel.WithConnectTimeout(cfg.ClientConnectTimeout),
			synel.WithTimeout(cfg.ClientTimeout),
			synel.WithAttempts(cfg.ClientAttempts),
			synel.WithGatekeeper(gate),
			synel.WithLogger(log),
		)
		if err != nil {
			return nil, err
		}

		return synel.Connect(ctx, ccfg)
	}

	gin.SetMode(gin.ReleaseMode)
	admin := newAdminServer(listener, dial, cfg.ClientPort, adminTimeout(cfg), log)
	srv := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           admin.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("admin server started", "addr", cfg.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	runErr := waitForExit(ctx, listener, srvErr, log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown", "error", err)
	}

	return runErr
}

// acceptState is the part of the push listener that reports a fatal accept error.
type acceptState interface {
	Done() <-chan struct{}
	Err() error
}

// waitForExit blocks until a shutdown signal, a fatal listener error or an
// admin server failure. It returns the error that should end the process.
func waitForExit(ctx context.Context, ls acceptState, srvErr <-chan error, log logger.Logger) error {
	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case <-ls.Done():
		err := ls.Err()
		if err != nil {
			log.Error("push listener failed", "error", err)
		}

		return err
	case err := <-srvErr:
		log.Error("admin server failed", "error", err)
		return err
	}
}

// adminTimeout bounds one admin terminal request: waiting for the endpoint,
// connecting, and every attempt of the exchange.
func adminTimeout(cfg Config) time.Duration {
	return cfg.ClientConnectTimeout + time.Duration(cfg.ClientAttempts)*cfg.ClientTimeout + 5*time.Second
}

func newGatekeeper(ctx context.Context, cfg Config, log logger.Logger) (gatekeeper.Gatekeeper, func(), error) {
	if cfg.GateBackend != "redis" {
		return gatekeeper.Default(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info("connected to redis", "addr", cfg.RedisAddr)

	gate := gatekeeper.NewRedis(client,
		gatekeeper.WithKeyPrefix(cfg.GateKeyPrefix),
		gatekeeper.WithLease(cfg.GateLease),
		gatekeeper.WithLogger(log),
	)

	return gate, func() { _ = client.Close() }, nil
}

func newHandler(cfg Config, log logger.Logger) (synel.Handler, func(), error) {
	if cfg.NATSURL == "" {
		log.Warn("no NATS url configured, data records are only logged")
		return logOnlyHandler(log), func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("synelgw"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", cfg.NATSURL, err)
	}
	log.Info("connected to nats", "url", cfg.NATSURL)

	fwd := forward.New(nc,
		forward.WithSubjectPrefix(cfg.NATSPrefix),
		forward.WithAutoAck(cfg.NATSAutoAck),
		forward.WithQueryTimeout(cfg.NATSQueryTimeout),
		forward.WithLogger(log),
	)

	return fwd.Handle, func() { nc.Close() }, nil
}

// logOnlyHandler acknowledges data records and denies queries.
func logOnlyHandler(log logger.Logger) synel.Handler {
	return func(ctx context.Context, n *synel.PushNotification) {
		log.Info("push notification",
			"type", n.Type.String(),
			"terminal", n.TerminalID,
			"data", n.Data,
			"remote", n.RemoteAddr,
		)

		var err error
		switch n.Type {
		case synel.NotificationData:
			err = n.Acknowledge(ctx)
		case synel.NotificationQuery:
			err = n.Reply(ctx, false, 0, forward.DefaultDeniedMessage, synel.AlignLeft)
		}
		if err != nil {
			log.Warn("failed to answer notification", "terminal", n.TerminalID, "error", err)
		}
	}
}
