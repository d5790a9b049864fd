// Package banner prints the startup summary.
package banner

import (
	"fmt"

	"chatpipe/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗██████╗ ██╗██████╗ ███████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔══██╗██║██╔══██╗██╔════╝
██║     ███████║███████║   ██║   ██████╔╝██║██████╔╝█████╗
██║     ██╔══██║██╔══██║   ██║   ██╔═══╝ ██║██╔═══╝ ██╔══╝
╚██████╗██║  ██║██║  ██║   ██║   ██║     ██║██║     ███████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝     ╚═╝╚═╝     ╚══════╝
`

// Print prints the banner plus the effective runtime summary.
func Print(cfg *config.Config, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Diagnostics: %s\n", cfg.Addr())
	fmt.Printf("Remote:      %s\n", cfg.Remote.BaseURL)
	fmt.Printf("Outbox:      %s\n", cfg.Storage.DBPath)
	if version != "" {
		fmt.Printf("Version:     %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}

	fmt.Println("\n== Checks =====================================================")
	if cfg.Remote.APIKey != "" {
		fmt.Println("- API key: OK")
	} else {
		fmt.Println("- API key: MISSING (requests will be unauthenticated)")
	}
	if cfg.Retention.Enabled {
		info := "cron=" + cfg.Retention.Cron
		if cfg.Retention.Cron == "" {
			info = "cron=0 2 * * *"
		}
		fmt.Printf("- Retention: enabled (%s, period=%s)\n", info, cfg.RetentionPeriod())
	} else {
		fmt.Println("- Retention: disabled")
	}
	maxDim := cfg.Media.MaxDimension
	if maxDim <= 0 {
		maxDim = 2048
	}
	fmt.Printf("- Max image dimension: %d\n", maxDim)

	fmt.Println("\n== Logs: =================================================")
}
