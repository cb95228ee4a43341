// migrate applies or rolls back the embedded front-desk schema (profiles, settings, device requests,
// shifts, payments, audit log and the stored procedures the coordinator calls).
//
//	migrate -direction up|down|version
package main

import (
	"flag"
	"fmt"
	"os"

	"gym-frontdesk/backend/internal/config"
	"gym-frontdesk/backend/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "up, down, or version to print the applied version")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	if *direction == "version" {
		version, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
		switch {
		case err != nil:
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		case !ok:
			fmt.Println("no migrations applied")
		default:
			fmt.Printf("version %d (dirty=%v)\n", version, dirty)
		}
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
