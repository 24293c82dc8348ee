package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/ghalamif/CamFlow"
)

func main() {
	flow, err := camflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flow.Config().Application.AlwaysTriggerAtStart = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("edge runtime exited: %v", err)
	}
}
