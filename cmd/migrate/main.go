// Command migrate applies the embedded Paydesk schema migrations.
//
// Usage:
//
//	PAYDESK_DATABASE_URL=postgres://... migrate -direction up
package main

import (
	"flag"
	"log"
	"os"

	"paydesk/cmd/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	dsn := os.Getenv("PAYDESK_DATABASE_URL")
	if err := migrate.Run(dsn, *direction); err != nil {
		log.Fatalf("migrate %s: %v", *direction, err)
	}
	log.Printf("migrate %s: done", *direction)
}
