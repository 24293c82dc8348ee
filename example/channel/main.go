package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/CamFlow"
)

func main() {
	flow, err := camflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := camflow.NewChannelSink("fanout", 32)
	defer closeBatches()

	go fanoutWorker("ingest", batches)

	rt, err := flow.StreamOUT(camflow.StreamOutSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	// The config declares an external "depth" sensor fed from this process.
	if feed, ok := rt.Feed("depth"); ok {
		go publishDepth(ctx, feed)
	}
	if err := rt.StartTriggering(); err != nil {
		log.Fatalf("start triggering: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-rt.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

func publishDepth(ctx context.Context, feed *camflow.ExternalFeed) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	depth := 12.0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			depth += 0.1
			if err := feed.Publish(fmt.Sprintf("%.2f,m", depth)); err != nil {
				log.Printf("depth feed: %v", err)
			}
		}
	}
}

func fanoutWorker(name string, batches <-chan []camflow.Record) {
	for batch := range batches {
		fmt.Printf("[%s] forwarding %d records at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
