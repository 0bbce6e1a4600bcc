package visionstream

import (
	"sync"
	"testing"
)

func TestPushSourceConcurrentStop(t *testing.T) {
	p := NewPushSource(4)

	out := make(chan *Frame, 4)
	if err := p.Start(out); err != nil {
		t.Fatalf("start: %v", err)
	}
	go func() {
		for range out {
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Stop(); err != nil {
				t.Errorf("stop: %v", err)
			}
		}()
	}
	wg.Wait()
}
