package resolver

import (
	"context"
	"io"
	"os"
	"sync/atomic"
)

// ProgressFunc receives the bytes processed so far, total is -1 when unknown.
type ProgressFunc func(completed, total int64)

// Spool is the temporary file a remote artifact is downloaded into.
type Spool struct {
	f        *os.File
	total    int64
	written  int64
	progress ProgressFunc
}

func newSpool(dir string, progress ProgressFunc) (*Spool, error) {
	f, err := os.CreateTemp(dir, "bioimageio-*")
	if err != nil {
		return nil, err
	}
	return &Spool{f: f, total: -1, progress: progress}, nil
}

// SetTotal announces the expected size of the content.
func (s *Spool) SetTotal(total int64) {
	atomic.StoreInt64(&s.total, total)
	s.notify(0)
}

func (s *Spool) Write(p []byte) (int, error) {
	n, err := s.f.Write(p)
	s.notify(int64(n))
	return n, err
}

func (s *Spool) WriteAt(p []byte, off int64) (int, error) {
	n, err := s.f.WriteAt(p, off)
	s.notify(int64(n))
	return n, err
}

// Reset discards everything written so far.
func (s *Spool) Reset() error {
	if err := s.f.Truncate(0); err != nil {
		return err
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	atomic.StoreInt64(&s.written, 0)
	s.notify(0)
	return nil
}

func (s *Spool) notify(n int64) {
	written := atomic.AddInt64(&s.written, n)
	if s.progress != nil {
		s.progress(written, atomic.LoadInt64(&s.total))
	}
}

func (s *Spool) release() error {
	cerr := s.f.Close()
	if err := os.Remove(s.f.Name()); err != nil {
		return err
	}
	return cerr
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

type progressReader struct {
	r         io.Reader
	total     int64
	completed int64
	progress  ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.completed += int64(n)
	if p.progress != nil {
		p.progress(p.completed, p.total)
	}
	return n, err
}
