// FilePath: server/sensorlog/cmd/server/main.go
package main

import (
	"fmt"
	"log"
	"os"

	tm "github.com/buger/goterm"
	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/server"
)

func main() {
	// Clear console and draw logo
	ClearConsole()
	DrawLogo()
	// Initialize version info
	nuts.InitVersion()
	nuts.L.Infof("[Main] Starting W4B Sensor Log v%s", nuts.GetVersion())

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	nuts.L.Infof("[Main] Using database %s (pool size %d)", cfg.Database.Path, cfg.Database.PoolSize)

	// Create and start server
	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		nuts.L.Errorf("[Main] Server error: %v", err)
		os.Exit(1)
	}
}

// ClearConsole clears the console screen
func ClearConsole() {
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

func DrawLogo() {
	fmt.Println()
	lines := []string{
		"   _____                            __               ",
		"  / ___/___  ____  _________  _____/ /   ____  ____ _",
		"  \\__ \\/ _ \\/ __ \\/ ___/ __ \\/ ___/ /   / __ \\/ __ `/",
		" ___/ /  __/ / / (__  ) /_/ / /  / /___/ /_/ / /_/ / ",
		"/____/\\___/_/ /_/____/\\____/_/  /_____/\\____/\\__, /  ",
		"                                            /____/   ",
		"..................................................  " + nuts.GetVersion(),
	}

	for _, line := range lines {
		fmt.Println(line)
	}
}
