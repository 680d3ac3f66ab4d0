/*
main.go - Application entry point

STARTUP SEQUENCE (gymdesk serve):
  1. Load configuration (file, .env, environment)
  2. Open the SQLite or PostgreSQL store and migrate
  3. Wire membership, attendance, payments, sales and finance services
  4. Configure HTTP router and start the expiration sweep
  5. Serve until SIGINT/SIGTERM, then shut down gracefully

EXAMPLES:
  # Run with the default SQLite file
  gymdesk serve

  # Run in memory with demo data
  DATABASE_URL=":memory:" gymdesk serve --seed front-desk

  # Monthly report as JSON
  gymdesk report --period previous_month -o json

SEE ALSO:
  - cli/: Commands
  - config/config.go: Configuration keys
*/
package main

import "github.com/warp/gymdesk/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
