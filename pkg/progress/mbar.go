package progress

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type MultiBar struct {
	w               io.Writer
	width           int
	lastWrittenRows int
	bars            []*Bar
	lock            sync.Mutex
	eg              *errgroup.Group
	haschange       int32
}

func NewMultiBar(dest io.Writer, width int, concurrency int) *MultiBar {
	mb := &MultiBar{w: dest, width: width, eg: &errgroup.Group{}}
	if concurrency <= 0 {
		concurrency = 5
	}
	mb.eg.SetLimit(concurrency)
	return mb
}

func (m *MultiBar) markChanged() {
	atomic.StoreInt32(&m.haschange, 1)
}

func (m *MultiBar) print() {
	m.lock.Lock()
	defer m.lock.Unlock()

	buf := &bytes.Buffer{}
	if m.lastWrittenRows > 0 {
		buf.Write(CUU(m.lastWrittenRows))
		buf.Write(ED(0))
	}
	for _, b := range m.bars {
		b.render(buf)
	}
	_, _ = m.w.Write(buf.Bytes())
	m.lastWrittenRows = len(m.bars)
}

// Run redraws changed bars until ctx is done.
func (m *MultiBar) Run(ctx context.Context) {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if atomic.CompareAndSwapInt32(&m.haschange, 1, 0) {
				m.print()
			}
		}
	}
}

// Go runs fn on its own bar, at most concurrency at a time.
func (m *MultiBar) Go(name string, initstatus string, fn func(b *Bar) error) {
	bar := &Bar{mb: m, Name: name, Status: initstatus, Width: m.width}
	m.lock.Lock()
	m.bars = append(m.bars, bar)
	m.lock.Unlock()
	m.print()

	m.eg.Go(func() error {
		if err := fn(bar); err != nil {
			bar.finish("failed", true)
			return err
		}
		bar.finish("done", false)
		return nil
	})
}

func (m *MultiBar) Wait() error {
	return m.eg.Wait()
}
