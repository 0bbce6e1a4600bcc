package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/adapters/segment"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// FileConfig configures segment-file replay.
type FileConfig struct {
	Path string `yaml:"path"`

	// FPS paces the replay. 0 replays as fast as downstream accepts.
	FPS int `yaml:"fps"`
}

// File replays a recorded segment file through the pipeline, reassigning
// fresh sequence numbers so the replayed stream honors the source contract.
type File struct {
	cfg FileConfig

	mu       sync.Mutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	err      error
}

func NewFile(cfg FileConfig) (*File, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file source: path is required")
	}
	return &File{cfg: cfg}, nil
}

func (s *File) Start(out chan<- *domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("file source already started")
	}
	s.started = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.replay(out)
	return nil
}

func (s *File) Stop() error {
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

func (s *File) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// errReplayStopped aborts segment iteration on Stop; it never surfaces as a
// terminal error.
var errReplayStopped = fmt.Errorf("replay stopped")

func (s *File) replay(out chan<- *domain.Frame) {
	defer s.wg.Done()
	defer close(out)

	var interval time.Duration
	if s.cfg.FPS > 0 {
		interval = time.Second / time.Duration(s.cfg.FPS)
	}

	var seq uint64
	err := segment.Read(s.cfg.Path, func(f *domain.Frame) error {
		if interval > 0 {
			select {
			case <-time.After(interval):
			case <-s.stopCh:
				return errReplayStopped
			}
		}

		f.Seq = seq
		select {
		case out <- f:
			seq++
			return nil
		case <-s.stopCh:
			return errReplayStopped
		}
	})

	if err != nil && err != errReplayStopped {
		s.mu.Lock()
		s.err = &ports.PermanentError{Err: fmt.Errorf("replay %s: %w", s.cfg.Path, err)}
		s.mu.Unlock()
	}
}

var _ ports.Source = (*File)(nil)
