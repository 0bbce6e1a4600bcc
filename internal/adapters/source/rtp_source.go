package source

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/domain"
	"github.com/aleksanderbialka/bioscopeai-vision-streamer/internal/ports"
)

// RTPConfig configures the RTP/UDP network source.
type RTPConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// PayloadType filters packets; 0 accepts everything.
	PayloadType uint8 `yaml:"payload_type"`

	// ReadTimeout bounds a single socket read; a stalled sender counts as
	// a transient failure.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// MaxRetries and RetryBackoff bound transient-failure recovery before
	// the source gives up.
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

func (c *RTPConfig) ApplyDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 2 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
}

// RTP receives RTP packets over UDP and reassembles marker-delimited packet
// runs into frames. Payloads are treated as opaque encoded frame data
// (typically JPEG); decoding belongs to a pipeline stage.
type RTP struct {
	cfg RTPConfig

	mu       sync.Mutex
	started  bool
	conn     net.PacketConn
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	err      error
}

func NewRTP(cfg RTPConfig) (*RTP, error) {
	cfg.ApplyDefaults()
	if cfg.ListenAddr == "" {
		return nil, fmt.Errorf("rtp source: listen_addr is required")
	}
	return &RTP{cfg: cfg}, nil
}

func (s *RTP) Start(out chan<- *domain.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("rtp source already started")
	}

	conn, err := net.ListenPacket("udp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("rtp listen %s: %w", s.cfg.ListenAddr, err)
	}

	s.started = true
	s.conn = conn
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.receive(out)
	return nil
}

func (s *RTP) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	stop := s.stopCh
	conn := s.conn
	s.mu.Unlock()

	var err error
	s.stopOnce.Do(func() {
		close(stop)
		// Unblock the reader.
		err = conn.Close()
	})
	s.wg.Wait()
	return err
}

func (s *RTP) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *RTP) receive(out chan<- *domain.Frame) {
	defer s.wg.Done()
	defer close(out)

	buf := make([]byte, 64<<10)
	var (
		seq      uint64
		assembly []byte
		retries  int
		backoff  = s.cfg.RetryBackoff
	)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}

			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				retries++
				if retries > s.cfg.MaxRetries {
					s.setErr(fmt.Errorf("%w: no packets for %d reads", ports.ErrSourceExhausted, retries))
					return
				}
				time.Sleep(backoff)
				backoff *= 2
				continue
			}

			s.setErr(ports.Permanent(fmt.Errorf("rtp read: %w", err)))
			return
		}
		retries = 0
		backoff = s.cfg.RetryBackoff

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			// Malformed datagram; skip it rather than fail the stream.
			continue
		}
		if s.cfg.PayloadType != 0 && pkt.PayloadType != s.cfg.PayloadType {
			continue
		}

		assembly = append(assembly, pkt.Payload...)
		if !pkt.Marker {
			continue
		}

		f := &domain.Frame{
			Seq:       seq,
			Timestamp: time.Now(),
			Data:      assembly,
			Format:    domain.FormatJPEG,
		}
		assembly = nil

		select {
		case out <- f:
			seq++
		case <-s.stopCh:
			return
		}
	}
}

func (s *RTP) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

var _ ports.Source = (*RTP)(nil)
