package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mese79/spec-bioimage-io/pkg/units"
)

type Bar struct {
	Name      string
	Total     int64 // total bytes, <= 0 when unknown
	Completed int64
	Width     int
	Status    string
	Done      bool
	Failed    bool

	mu sync.Mutex
	mb *MultiBar
}

func (b *Bar) render(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	width := b.Width
	if width <= 0 {
		width = 40
	}
	var filled int
	status := b.Status
	switch {
	case b.Done:
		filled = width
	case b.Total > 0:
		filled = int(float64(width) * float64(b.Completed) / float64(b.Total))
		if status == "" {
			status = units.HumanSize(float64(b.Completed)) + "/" + units.HumanSize(float64(b.Total))
		}
	}
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	fmt.Fprintf(w, "%s [%s%s] %s\n", b.Name, strings.Repeat("+", filled), strings.Repeat("-", width-filled), status)
}

// SetProgress records progress and leaves the redraw to the multi bar ticker.
func (b *Bar) SetProgress(completed, total int64) {
	b.mu.Lock()
	b.Completed, b.Total, b.Status = completed, total, ""
	b.mu.Unlock()
	b.changed()
}

func (b *Bar) SetStatus(status string) {
	b.mu.Lock()
	b.Status = status
	b.mu.Unlock()
	b.Notify()
}

func (b *Bar) finish(status string, failed bool) {
	b.mu.Lock()
	b.Done, b.Failed, b.Status = !failed, failed, status
	b.mu.Unlock()
	b.Notify()
}

func (b *Bar) changed() {
	if b.mb != nil {
		b.mb.markChanged()
	}
}

// Notify redraws immediately.
func (b *Bar) Notify() {
	if b.mb != nil {
		b.mb.print()
	}
}
