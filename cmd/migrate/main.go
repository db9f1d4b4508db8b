// FilePath: server/sensorlog/cmd/migrate/main.go
package main

import (
	"context"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	nuts "github.com/vaudience/go-nuts"

	"github.com/itsatony/w4b_v3/server/sensorlog/internal/config"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database"
	"github.com/itsatony/w4b_v3/server/sensorlog/internal/database/migrate"
)

func main() {
	direction := flag.StringP("direction", "d", "up", "migration direction: up or down")
	steps := flag.IntP("steps", "n", 0, "apply n migrations (negative rolls back); overrides --direction")
	version := flag.BoolP("version", "v", false, "print the current schema version and exit")
	dbPath := flag.String("db", "", "database path (defaults to the configured database.path)")
	flag.Parse()

	if err := run(*direction, *steps, *version, *dbPath); err != nil {
		nuts.L.Errorf("[Migrate] %v", err)
		os.Exit(1)
	}
}

func run(direction string, steps int, version bool, dbPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	pool, err := database.Open(context.Background(), cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := migrate.New(pool)
	switch {
	case version:
	case steps != 0:
		err = m.Steps(steps)
	default:
		err = migrate.Run(pool, direction)
	}
	if err != nil {
		return err
	}

	v, ok, err := m.Version()
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("schema version: none")
		return nil
	}
	fmt.Printf("schema version: %d\n", v)
	return nil
}
