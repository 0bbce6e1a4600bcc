package main

import (
	"context"
	"fmt"
	"log"
	"time"

	visionstreamer "github.com/aleksanderbialka/bioscopeai-vision-streamer"
)

func main() {
	flow, err := visionstreamer.Conf("../../config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	callback := func(f *visionstreamer.Frame) error {
		fmt.Printf("%s seq=%d %dx%d %s detections=%d\n",
			f.Timestamp.Format(time.RFC3339Nano),
			f.Seq,
			f.Width, f.Height,
			f.Format,
			len(f.Annotations.Detections),
		)
		return nil
	}

	if err := flow.Run(ctx, visionstreamer.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
