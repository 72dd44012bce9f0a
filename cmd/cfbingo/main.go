package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/api/admin"
	"github.com/ZJUSCT/CFBingo/internal/api/user"
	"github.com/ZJUSCT/CFBingo/internal/codeforces"
	"github.com/ZJUSCT/CFBingo/internal/config"
	"github.com/ZJUSCT/CFBingo/internal/contest"
	"github.com/ZJUSCT/CFBingo/internal/database"
	"github.com/ZJUSCT/CFBingo/internal/metrics"
	"github.com/ZJUSCT/CFBingo/internal/poller"
	"github.com/ZJUSCT/CFBingo/internal/pubsub"
	"github.com/ZJUSCT/CFBingo/internal/seed"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "dev-build"

func main() {
	fmt.Fprintf(os.Stderr, "ZJUSCT CFBingo %s - Codeforces Bingo and Tug-of-War Contest Server\n\n", Version)

	app := &cli.App{
		Name:    "cfbingo",
		Usage:   "run the bingo and tug-of-war contest server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "configs/config.yaml",
				Usage:   "path to config file",
				EnvVars: []string{"CFBINGO_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the user and admin servers",
				Action: serve,
			},
			{
				Name:      "seed",
				Usage:     "load teams, problems and matches from a seed file",
				ArgsUsage: "[seed.yaml]",
				Action:    runSeed,
			},
			{
				Name:  "reset",
				Usage: "delete every Round 1 score",
				Action: func(c *cli.Context) error {
					return withService(c, func(svc *contest.Service) error {
						_, err := svc.ResetRound1(c.Context)
						return err
					})
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

type deps struct {
	cfg     *config.Config
	db      *gorm.DB
	metrics *metrics.Metrics
	svc     *contest.Service
}

func setup(c *cli.Context) (*deps, func(), error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// logger
	var logger *zap.Logger
	if cfg.Logger.Level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("can't initialize zap logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	// database
	db, err := database.Init(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	zap.S().Info("database initialized successfully")

	m := metrics.New()
	client := codeforces.NewClient(cfg.Codeforces, m)
	svc := contest.NewService(cfg, db, client, pubsub.GetBroker(), m)

	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		_ = logger.Sync()
	}
	return &deps{cfg: cfg, db: db, metrics: m, svc: svc}, cleanup, nil
}

func withService(c *cli.Context, fn func(*contest.Service) error) error {
	rt, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(rt.svc)
}

func runSeed(c *cli.Context) error {
	rt, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()

	path := c.Args().First()
	if path == "" {
		path = rt.cfg.Seed
	}
	f, err := seed.LoadFile(path)
	if err != nil {
		return err
	}
	_, err = seed.Apply(rt.db, f, rt.cfg.Round2)
	return err
}

func serve(c *cli.Context) error {
	rt, cleanup, err := setup(c)
	if err != nil {
		return err
	}
	defer cleanup()
	cfg := rt.cfg

	if rt.cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be set")
	}

	if cfg.Seed != "" {
		if f, err := seed.LoadFile(cfg.Seed); err != nil {
			zap.S().Warnf("skipping seed: %v", err)
		} else if _, err := seed.Apply(rt.db, f, cfg.Round2); err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// recovery and background polling
	p := poller.New(rt.svc, cfg.Poller)
	if err := p.Recover(ctx); err != nil {
		zap.S().Errorf("failed to recover active matches: %v", err)
	} else {
		zap.S().Info("successfully recovered active matches")
	}
	if cfg.Poller.Enabled {
		go p.Run(ctx)
	}

	// API routers
	servers := []*http.Server{{Addr: cfg.Listen, Handler: user.NewUserRouter(cfg, rt.svc)}}
	if cfg.Admin.Enabled {
		servers = append(servers, &http.Server{Addr: cfg.Admin.Listen, Handler: admin.NewAdminRouter(cfg, rt.svc, rt.metrics)})
	}

	// start servers
	for _, srv := range servers {
		srv := srv
		go func() {
			zap.S().Infof("starting server at %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.S().Fatalf("failed to start server at %s: %v", srv.Addr, err)
			}
		}()
	}

	// graceful shutdown
	<-ctx.Done()
	zap.S().Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorf("failed to shut down server at %s: %v", srv.Addr, err)
		}
	}
	return nil
}
