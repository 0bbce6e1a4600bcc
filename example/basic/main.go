package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	visionstreamer "github.com/aleksanderbialka/bioscopeai-vision-streamer"
)

func main() {
	flow, err := visionstreamer.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("streamer exited: %v", err)
	}
}
