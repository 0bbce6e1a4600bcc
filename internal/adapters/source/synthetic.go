// Package source provides the built-in frame source adapters: a synthetic
// test-pattern generator, a segment-file replay source, and an RTP/UDP
// network source.
package source

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// SyntheticConfig configures the test-pattern generator.
type SyntheticConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`

	// FrameCount bounds the sequence; 0 streams until Stop.
	FrameCount int `yaml:"frame_count"`
}

func (c *SyntheticConfig) ApplyDefaults() {
	if c.Width <= 0 {
		c.Width = 640
	}
	if c.Height <= 0 {
		c.Height = 480
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
}

// Synthetic generates RGB24 frames with a bright block orbiting the center,
// so downstream stages and sinks can be exercised without a camera.
type Synthetic struct {
	cfg SyntheticConfig

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	cfg.ApplyDefaults()
	return &Synthetic{cfg: cfg}
}

func (s *Synthetic) Start(out chan<- *domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("synthetic source already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.generate(out)
	return nil
}

func (s *Synthetic) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	stop := s.stopCh
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(stop) })
	s.wg.Wait()
	return nil
}

// Err always reports nil: the generator only ends cleanly.
func (s *Synthetic) Err() error { return nil }

func (s *Synthetic) generate(out chan<- *domain.Frame) {
	defer s.wg.Done()
	defer close(out)

	interval := time.Second / time.Duration(s.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	start := time.Now()
	var seq uint64

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			f := &domain.Frame{
				Seq:       seq,
				Timestamp: now,
				Data:      s.render(now.Sub(start).Seconds()),
				Width:     s.cfg.Width,
				Height:    s.cfg.Height,
				Format:    domain.FormatRGB24,
			}
			select {
			case out <- f:
			case <-s.stopCh:
				return
			}
			seq++
			if s.cfg.FrameCount > 0 && seq >= uint64(s.cfg.FrameCount) {
				return
			}
		}
	}
}

// render draws a bright block orbiting the frame center on a black
// background.
func (s *Synthetic) render(elapsed float64) []byte {
	w, h := s.cfg.Width, s.cfg.Height
	buf := make([]byte, w*h*3)

	cx := w/2 + int(float64(w/4)*math.Sin(elapsed))
	cy := h/2 + int(float64(h/4)*math.Cos(elapsed))
	const half = 20

	for y := cy - half; y <= cy+half; y++ {
		if y < 0 || y >= h {
			continue
		}
		for x := cx - half; x <= cx+half; x++ {
			if x < 0 || x >= w {
				continue
			}
			i := (y*w + x) * 3
			buf[i+1] = 0xFF // green block
		}
	}
	return buf
}

var _ ports.Source = (*Synthetic)(nil)
