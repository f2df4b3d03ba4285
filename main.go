package main

import (
	"context"
	"errors"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"

	"github.com/wfunc/quizserver/auth"
	"github.com/wfunc/quizserver/broadcast"
	"github.com/wfunc/quizserver/config"
	"github.com/wfunc/quizserver/game"
	"github.com/wfunc/quizserver/logger"
	"github.com/wfunc/quizserver/monitor"
	"github.com/wfunc/quizserver/persistence"
	"github.com/wfunc/quizserver/room"
	"github.com/wfunc/quizserver/rpc"
	"github.com/wfunc/quizserver/server"
	"github.com/wfunc/quizserver/services"
	"github.com/wfunc/quizserver/timer"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := logger.Init(cfg.Log.Level); err != nil {
		logger.Log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()
	log := logger.Log

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Scores
	var store *persistence.GormStore
	if cfg.Database.Postgres.Enabled {
		pg := cfg.Database.Postgres
		store, err = persistence.NewGormPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
	} else {
		store, err = persistence.NewGormStore(sqlite.Open(cfg.Database.SQLitePath))
	}
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	log.Info("Database connection successful.")

	// Content
	var content persistence.ContentStore = persistence.NewSeededContent()
	if cfg.Database.ContentSource == "postgres" {
		pg := cfg.Database.Postgres
		pgContent, err := persistence.NewPostgreSQL(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName)
		if err != nil {
			log.Fatalf("Failed to open content database: %v", err)
		}
		defer pgContent.Close()
		if err := pgContent.SeedFrom(ctx, persistence.NewSeededContent()); err != nil {
			log.Fatalf("Failed to seed content: %v", err)
		}
		content = pgContent
	}

	// Broadcast, optionally relayed through redis
	hub := broadcast.NewHub(cfg.Game.SubscriberBuffer, log)
	var bus broadcast.Bus = hub
	registryOpts := []room.RegistryOption{}
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Address, err)
		}
		defer client.Close()
		relay := broadcast.NewRedisRelay(hub, client, cfg.Redis.Channel)
		go func() {
			if err := relay.Listen(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("Redis relay stopped: %v", err)
			}
		}()
		bus = relay
		registryOpts = append(registryOpts, room.WithCodeReserver(room.NewRedisCodes(client, cfg.Redis.Prefix, cfg.Redis.CodeTTL)))
		log.Infof("Redis relay enabled on %s", cfg.Redis.Channel)
	}

	registry, err := room.NewRegistry(bus, cfg.Game.CodeAttempts, cfg.Game.RoomExpiry, registryOpts...)
	if err != nil {
		log.Fatalf("Failed to create room registry: %v", err)
	}

	timers := timer.NewTimerManager(cfg.Game.TimerResolution)
	defer timers.Stop()

	mon := monitor.NewMonitor("quizserver")
	games := game.NewService(game.Dependencies{
		Registry: registry,
		Bus:      bus,
		Content:  content,
		Scores:   store,
		Timers:   timers,
		Monitor:  mon,
	}, game.SettingsFrom(cfg.Game))
	games.StartSweeper()

	verifier, err := auth.NewVerifier(cfg.Auth.Secret)
	if err != nil {
		log.Fatalf("Failed to create token verifier: %v", err)
	}

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, log)
	if err != nil {
		log.Fatalf("Failed to create RPC server: %v", err)
	}

	// Initialize Game Server
	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:     cfg.Server.HTTPAddress,
		Heartbeat:       cfg.Server.HeartbeatPeriod,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Dependencies{
		Games:    games,
		Bus:      bus,
		Verifier: verifier,
		Scores:   services.NewScoreService(store),
		Monitor:  mon,
		RPC:      rpcServer,
		Log:      log,
	})

	go func() {
		if err := gameServer.Run(ctx); err != nil {
			log.Fatalf("Game server failed: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, map[string]gfshutdown.Operation{
		"game-server": func(ctx context.Context) error {
			log.Info("Graceful shutdown initiated...")
			return gameServer.Shutdown(ctx)
		},
	})
	exitCode := <-wait
	cancel()
	log.Infof("Server exited with code: %d", exitCode)
	return exitCode
}
