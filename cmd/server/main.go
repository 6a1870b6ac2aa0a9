package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/bingo-backend/internal/auth"
	"github.com/DoyleJ11/bingo-backend/internal/config"
	"github.com/DoyleJ11/bingo-backend/internal/game"
	"github.com/DoyleJ11/bingo-backend/internal/httpapi"
	"github.com/DoyleJ11/bingo-backend/internal/hub"
	"github.com/DoyleJ11/bingo-backend/internal/logging"
	"github.com/DoyleJ11/bingo-backend/internal/store"
	"github.com/DoyleJ11/bingo-backend/internal/ws"
)

func main() {
	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "server",
		Usage:  "realtime bingo server",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "optional dotenv file, loaded before the environment is read",
				Value: ".env",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP and WebSocket server (default)",
				Action: serve,
			},
			{
				Name:  "token",
				Usage: "mint an access token for local testing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "user", Usage: "user ID", Required: true},
					&cli.StringFlag{Name: "name", Usage: "username", Required: true},
					&cli.StringFlag{Name: "role", Usage: "role claim", Value: "player"},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 12 * time.Hour},
				},
				Action: issueToken,
			},
		},
	}
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	return config.Load(cmd.String("env-file"))
}

func serve(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	svc := game.NewService(st, game.Config{Rules: cfg.Rules(), InvitationTTL: cfg.InvitationTTL}, log)
	h := hub.NewHub(context.Background(), svc, hub.Config{ActionTimeout: cfg.ActionTimeout}, log)
	verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret), auth.WithIssuer(cfg.JWTIssuer))

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, verifier, ws.Config{
			OriginPatterns: cfg.AllowedOrigins,
			OutboxSize:     cfg.OutboxSize,
			PingInterval:   cfg.PingInterval,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening",
			zap.String("addr", cfg.Addr),
			zap.String("pattern", cfg.DefaultPattern),
			zap.Int("number_min", cfg.NumberMin),
			zap.Int("number_max", cfg.NumberMax))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Stopping the hub first closes every socket with a close frame.
		return multierr.Combine(h.Stop(shutdownCtx), srv.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("BINGO_DATABASE_URL not set, sessions are kept in memory")
		return store.NewMemory(), nil
	}
	g, err := store.OpenPostgres(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func issueToken(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	verifier := auth.NewJWTVerifier([]byte(cfg.JWTSecret), auth.WithIssuer(cfg.JWTIssuer))
	token, err := verifier.Issue(auth.Identity{
		UserID:   cmd.String("user"),
		Username: cmd.String("name"),
		Role:     cmd.String("role"),
	}, cmd.Duration("ttl"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.Root().Writer, token)
	return err
}
