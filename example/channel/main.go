package main

import (
	"context"
	"fmt"
	"log"

	visionstreamer "github.com/aleksanderbialka/bioscopeai-vision-streamer"
)

func main() {
	flow, err := visionstreamer.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink, frames, closeFrames := visionstreamer.NewChannelSink("fanout", 32)
	defer closeFrames()

	go fanoutWorker("viewer", frames)

	if err := flow.Run(ctx, visionstreamer.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, frames <-chan *visionstreamer.Frame) {
	for f := range frames {
		fmt.Printf("[%s] frame %d (%d bytes, %d detections)\n",
			name, f.Seq, len(f.Data), len(f.Annotations.Detections))
	}
}
