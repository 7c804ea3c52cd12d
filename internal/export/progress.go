package export

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LineProgress redraws a single status line while an export runs.
type LineProgress struct {
	enabled bool
	out     io.Writer
	label   string

	mu   sync.Mutex
	cur  Progress
	seen bool

	stop chan struct{}
	once sync.Once
}

func NewLineProgress(out io.Writer, enabled bool, label string) *LineProgress {
	return &LineProgress{
		enabled: enabled,
		out:     out,
		label:   label,
		stop:    make(chan struct{}),
	}
}

func (p *LineProgress) Start() {
	if !p.enabled {
		return
	}
	go func() {
		t := time.NewTicker(700 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				p.mu.Lock()
				line := p.render()
				fmt.Fprintf(p.out, "\r\033[2K%s", line)
				p.mu.Unlock()
			}
		}
	}()
}

// Update records progress. It is safe to pass as a ProgressFunc.
func (p *LineProgress) Update(pr Progress) {
	p.mu.Lock()
	p.cur = pr
	p.seen = true
	p.mu.Unlock()
}

func (p *LineProgress) Stop(final string) {
	if !p.enabled {
		return
	}
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprintf(p.out, "\r\033[2K%s\n", final)
	})
}

func (p *LineProgress) render() string {
	if !p.seen {
		return p.label + ": preparing..."
	}
	return fmt.Sprintf("%s: %d/%d (%d%%)", p.label, p.cur.Completed, p.cur.Total, p.cur.Percent())
}
