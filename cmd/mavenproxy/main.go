package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mavenproxy/internal/app"
	"mavenproxy/pkg/config"
	"mavenproxy/pkg/logger"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, originsVal, cfgVal, setFlags := config.ParseCommandFlags()

	// Config path: flag wins over env.
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, fileUsed, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags win over config/env when explicitly set.
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	if setFlags["origins"] {
		cfg.Proxy.Origins = config.ParseList(originsVal)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)

	var srcs []string
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if fileUsed {
		srcs = append(srcs, "config")
	}

	a, err := app.New(cfg, addr, strings.Join(srcs, ", "), version, commit, buildDate)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("shutdown_complete")
}
