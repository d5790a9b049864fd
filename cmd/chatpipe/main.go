package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"chatpipe/internal/app"
	"chatpipe/pkg/banner"
	"chatpipe/pkg/config"
	"chatpipe/pkg/logger"
	"chatpipe/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		shutdown.Abort("config load failed", err, "", 0)
	}

	// flags explicitly set win over env/config
	if setFlags["addr"] {
		host, port, ok := strings.Cut(addrVal, ":")
		cfg.Server.Address = host
		if ok && port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = p
			}
		}
	}
	if setFlags["db"] || cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = dbVal
	}

	logger.Init(cfg.Logging.Level)

	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}
	verStr := version
	if commit != "none" {
		verStr += " (" + commit + ")"
	}
	banner.Print(cfg, strings.Join(srcs, ", "), verStr)

	a, err := app.New(cfg, verStr, nil)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.DBPath, 0)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("runtime failure", err, cfg.Storage.DBPath, 0)
	}
	logger.Info("shutdown_complete")
}
