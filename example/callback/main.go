package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/CamFlow/pkg/camflow"
)

func main() {
	flow, err := camflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	flow.Config().Application.AlwaysTriggerAtStart = true

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []camflow.Record) error {
		for _, r := range batch {
			switch r.Kind {
			case camflow.RecordImage:
				fmt.Printf("%s image #%d camera=%s file=%s sensors=%d\n",
					r.Image.Time.Format(time.RFC3339Nano),
					r.Image.Number,
					r.Image.Camera,
					r.Image.Filename,
					len(r.Image.Sensors),
				)
			case camflow.RecordAsync:
				fmt.Printf("%s async %s %s\n", r.Async.ReceivedAt.Format(time.RFC3339Nano), r.Async.SensorID, r.Async.Data)
			default:
				fmt.Printf("%s record %s\n", r.Kind, r.ID)
			}
		}
		return nil
	}

	if err := flow.Run(ctx, camflow.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
