package agent

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"drone/internal/errors"
)

// MinPoll is the shortest delay between polls of a followed source.
const MinPoll = 100 * time.Millisecond

// maxLine bounds one task line; module blobs travel inline as base64.
const maxLine = 64 << 20

// Task is one line of a task source.
type Task struct {
	Command string
	Payload []byte // {"Parameters":[...]} or nil
}

// ParseTask decodes a task line of the form
//
//	{"command":"Sleep","parameters":[{"name":"Interval","value":30}]}
//
// Field names are matched case-insensitively.
func ParseTask(line []byte) (Task, error) {
	if !gjson.ValidBytes(line) {
		return Task{}, &errors.DecodeError{Reason: "task line is not valid JSON"}
	}
	root := gjson.ParseBytes(line)
	if !root.IsObject() {
		return Task{}, &errors.DecodeError{Reason: "task line must be a JSON object"}
	}

	var t Task
	var params gjson.Result
	root.ForEach(func(k, v gjson.Result) bool {
		switch {
		case strings.EqualFold(k.String(), "command"):
			t.Command = strings.TrimSpace(v.String())
		case strings.EqualFold(k.String(), "parameters"):
			params = v
		}
		return true
	})
	if t.Command == "" {
		return Task{}, &errors.DecodeError{Reason: "task line has no command"}
	}
	if params.Exists() && params.Type != gjson.Null {
		payload, err := sjson.SetRawBytes([]byte(`{}`), "Parameters", []byte(params.Raw))
		if err != nil {
			return Task{}, &errors.DecodeError{Reason: "task parameters", Err: err}
		}
		t.Payload = payload
	}
	return t, nil
}

// Run reads task lines from r and dispatches each one, running up to
// Workers tasks at once.  Blank lines and lines starting with '#' are
// skipped; a malformed line is reported as an error event.
//
// Run returns when r is exhausted, when the agent is stopped, or when
// ctx is done, after every started task has finished.  Tasks read after
// Stop are dropped.  With follow set, reaching the end of r waits one
// sleep interval and reads again instead of returning.
func (a *Agent) Run(ctx context.Context, r io.Reader, follow bool) error {
	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.done:
			cancel()
		case <-readCtx.Done():
		}
	}()

	if follow {
		r = &pollReader{ctx: readCtx, r: r, wait: a.nextSleep}
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 || line[0] == '#' {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-readCtx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	a.logger.Verbose("agent %s reading tasks (%d workers, follow=%v)", a.ID, a.workers, follow)

	var g errgroup.Group
	g.SetLimit(a.workers)

loop:
	for {
		select {
		case <-readCtx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			t, err := ParseTask(line)
			g.Go(func() error {
				if err != nil {
					a.metrics.RecordError(err.Error())
					a.SendError(err.Error())
					return nil
				}
				if a.Stopped() {
					a.logger.Verbose("agent stopped, dropping %s", t.Command)
					return nil
				}
				a.dispatcher.Dispatch(ctx, a.ID, t.Command, t.Payload)
				return nil
			})
		}
	}

	_ = g.Wait()

	select {
	case err := <-readErr:
		if err != nil {
			return err
		}
	default:
	}
	return nil
}

// pollReader turns EOF from r into a wait followed by another read, so
// a growing file can be followed.  It reports EOF once ctx is done.
type pollReader struct {
	ctx  context.Context
	r    io.Reader
	wait func() time.Duration
}

func (p *pollReader) Read(b []byte) (int, error) {
	for {
		n, err := p.r.Read(b)
		if n > 0 {
			return n, nil
		}
		if err != nil && err != io.EOF {
			return 0, err
		}

		d := p.wait()
		if d < MinPoll {
			d = MinPoll
		}
		timer := time.NewTimer(d)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return 0, io.EOF
		case <-timer.C:
		}
	}
}
