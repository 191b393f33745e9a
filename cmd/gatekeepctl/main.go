// Command gatekeepctl is a CLI for administering the credential engine:
// registering and revoking OAuth clients and closing user sessions.
package main

import (
	"context"
	"log"

	"github.com/gatekeep-io/gatekeep/cmd/gatekeepctl/cmd"
	"github.com/gatekeep-io/gatekeep/tracing"
)

func main() {
	tp, err := tracing.InitTracerProvider("gatekeepctl")
	if err != nil {
		log.Fatalf("Failed to initialize TracerProvider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down TracerProvider: %v", err)
		}
	}()

	cmd.Execute()
}
