// Command etl ingests the daily COVID-19 US state reports into one
// accumulated table and serves it to downstream consumers.
package main

import (
	"context"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	execute(ctx)
}
