package sound

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrStreamClosed  = errors.New("stream is closed")
	ErrStreamRunning = errors.New("stream is already running")
)

// pacedStream calls tick once per interval on its own goroutine, standing in
// for a device clock.
type pacedStream struct {
	interval time.Duration
	tick     func()
	release  func() error

	mu      sync.Mutex
	running bool
	closed  bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

func newPacedStream(interval time.Duration, tick func(), release func() error) *pacedStream {
	return &pacedStream{
		interval: interval,
		tick:     tick,
		release:  release,
	}
}

func (s *pacedStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if s.running {
		return ErrStreamRunning
	}

	s.quit = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.loop(s.quit)
	return nil
}

func (s *pacedStream) loop(quit <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			// Stop may have raced with the tick.
			select {
			case <-quit:
				return
			default:
			}
			s.tick()
		}
	}
}

// Stop returns once the tick goroutine has exited.
func (s *pacedStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	close(s.quit)
	s.wg.Wait()
	s.running = false
	return nil
}

func (s *pacedStream) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.release != nil {
		return s.release()
	}
	return nil
}
