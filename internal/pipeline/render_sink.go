package pipeline

import (
	"fmt"
	"image"
	"sync"
)

type renderResult struct {
	frameIndex int
	img        image.Image
	err        error
}

// orderedRenderSink runs frame renders concurrently while guaranteeing the
// output writer sees frames strictly in submission order. In-flight work is
// bounded by the pool size: submit blocks once the order queue is full.
type orderedRenderSink struct {
	out   OutputWriter
	queue chan chan renderResult
	done  chan struct{}

	mu       sync.Mutex
	writeErr error
}

func newOrderedRenderSink(out OutputWriter, workers int) *orderedRenderSink {
	s := &orderedRenderSink{
		out:   out,
		queue: make(chan chan renderResult, workers),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// submit schedules one frame's render. Results are written in submission
// order no matter which render finishes first.
func (s *orderedRenderSink) submit(frameIndex int, render func() (image.Image, error)) {
	resultCh := make(chan renderResult, 1)
	s.queue <- resultCh
	go func() {
		img, err := render()
		resultCh <- renderResult{frameIndex: frameIndex, img: img, err: err}
	}()
}

func (s *orderedRenderSink) writeLoop() {
	defer close(s.done)
	for resultCh := range s.queue {
		res := <-resultCh
		if s.err() != nil {
			continue // drain without writing past the first failure
		}
		if res.err != nil {
			s.setErr(fmt.Errorf("render frame %d: %w", res.frameIndex, res.err))
			continue
		}
		if s.out == nil {
			continue
		}
		if err := s.out.WriteFrame(res.frameIndex, res.img); err != nil {
			s.setErr(fmt.Errorf("write frame %d: %w", res.frameIndex, err))
		}
	}
}

// close drains outstanding work and returns the first render/write error.
func (s *orderedRenderSink) close() error {
	close(s.queue)
	<-s.done
	return s.err()
}

func (s *orderedRenderSink) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}

func (s *orderedRenderSink) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}
