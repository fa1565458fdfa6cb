package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/llmux/llmux/internal/account"
	"github.com/llmux/llmux/internal/api"
	"github.com/llmux/llmux/internal/config"
	"github.com/llmux/llmux/internal/cooldown"
	"github.com/llmux/llmux/internal/logging"
	"github.com/llmux/llmux/internal/proxy"
	"github.com/llmux/llmux/internal/routing"
	"github.com/llmux/llmux/internal/signature"
	"github.com/llmux/llmux/internal/thinking"
	"github.com/llmux/llmux/internal/tokens"
	"github.com/llmux/llmux/internal/upstream"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.Parse()

	logging.SetupBaseLogger()

	if configPath == "" {
		configPath = config.DefaultPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	if err = logging.ConfigureLogOutput(cfg.LoggingToFile); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := signature.OpenBolt(config.SignatureDBPath())
	if err != nil {
		log.Fatalf("failed to open signature database: %v", err)
	}
	defer func() { _ = db.Close() }()

	sessionID := uuid.NewString()
	sigCache := signature.NewCache(signature.DefaultMaxEntriesPerSession, signature.DefaultTTL, db)
	sigStore := signature.NewStore(db.DB())
	globalSlot := signature.NewGlobalSlot()
	engine := thinking.NewEngine(sigCache, globalSlot, sessionID)

	sigCache.StartSweeper(10*time.Minute, ctx.Done())

	tokenMgr := tokens.NewManager()
	tokenMgr.LoadFromEnv()

	cooldowns := cooldown.NewManager()
	core := &proxy.Core{
		Router: routing.NewRouter(cfg.Routing.ModelMapping, cfg.Routing.FallbackOrder,
			cfg.Routing.RotateOn429, cooldowns),
		Accounts:        account.NewManager(),
		Tokens:          tokenMgr,
		Thinking:        engine,
		SigStore:        sigStore,
		Markers:         cfg.Routing.ErrorMarkers,
		AttemptTimeout:  time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		ServerSessionID: sessionID,
	}
	if cfg.RequestLog {
		core.Payloads = logging.NewFilePayloadLogger(config.PayloadLogDir())
	}

	server := api.NewServer(cfg, core, upstream.New(cfg.Amp))

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		core.Router.Update(next.Routing.ModelMapping, next.Routing.FallbackOrder, next.Routing.RotateOn429)
		core.SetMarkers(next.Routing.ErrorMarkers)
	})
	if err != nil {
		log.Warnf("config watcher unavailable: %v", err)
	} else if err = watcher.Start(ctx); err != nil {
		log.Warnf("config watch failed: %v", err)
	}

	log.Infof("session %s starting", sessionID)
	if err = server.Start(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Info("shutdown complete")
}
