package project

import (
	"bufio"
	"io"
	"log/slog"
	"time"

	"github.com/loykin/devstack/internal/framework"
	"github.com/loykin/devstack/internal/logger"
)

const (
	streamStdout = "stdout"
	streamStderr = "stderr"

	defaultLineBuffer = 256
	maxLineBytes      = 1 << 20
)

type outputLine struct {
	stream string
	text   string
	at     time.Time
}

// pump moves the output of one project process. Each stream gets its own
// reader goroutine and bounded channel; a single goroutine drains both,
// writes the log files and classifies lines.
type pump struct {
	id     string
	typ    framework.Type
	stdout io.WriteCloser
	stderr io.WriteCloser
	sink   logger.Sink
	log    *slog.Logger
	notify func(Classification)
	done   chan struct{}
}

func (p *pump) start(stdout, stderr io.ReadCloser, buffer int) {
	if buffer <= 0 {
		buffer = defaultLineBuffer
	}
	p.done = make(chan struct{})
	outCh := p.read(streamStdout, stdout, buffer)
	errCh := p.read(streamStderr, stderr, buffer)
	go p.classify(outCh, errCh)
}

// read returns nil for a nil stream; a nil channel is never selected.
func (p *pump) read(stream string, r io.ReadCloser, buffer int) chan outputLine {
	if r == nil {
		return nil
	}
	ch := make(chan outputLine, buffer)
	go func() {
		defer close(ch)
		defer func() { _ = r.Close() }()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), maxLineBytes)
		for sc.Scan() {
			ch <- outputLine{stream: stream, text: sc.Text(), at: time.Now()}
		}
		if err := sc.Err(); err != nil {
			p.log.Debug("output reader stopped", "project", p.id, "stream", stream, "error", err)
		}
	}()
	return ch
}

func (p *pump) classify(outCh, errCh chan outputLine) {
	defer close(p.done)
	defer p.closeWriters()
	for outCh != nil || errCh != nil {
		var l outputLine
		var ok bool
		select {
		case l, ok = <-outCh:
			if !ok {
				outCh = nil
				continue
			}
		case l, ok = <-errCh:
			if !ok {
				errCh = nil
				continue
			}
		}
		p.handle(l)
	}
}

func (p *pump) handle(l outputLine) {
	w := p.stdout
	level := slog.LevelInfo
	if l.stream == streamStderr {
		w, level = p.stderr, slog.LevelWarn
	}
	if w != nil {
		_, _ = io.WriteString(w, l.text+"\n")
	}
	c, ok := Classify(p.typ, l.text)
	if ok && c.Milestone == MilestoneError {
		level = slog.LevelError
	}
	if p.sink != nil {
		p.sink.Write(logger.Entry{Time: l.at, Level: level, Source: p.id, Message: l.text})
	}
	if ok && p.notify != nil {
		p.notify(c)
	}
}

func (p *pump) closeWriters() {
	for _, w := range []io.WriteCloser{p.stdout, p.stderr} {
		if w != nil {
			_ = w.Close()
		}
	}
}
