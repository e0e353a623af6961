package models

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DummyLLM is a lightweight model implementation useful for local
// testing without API calls. Queued responses are returned in order;
// once drained it falls back to echoing the prompt's last line.
type DummyLLM struct {
	Prefix string

	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func NewDummyLLM(prefix string) *DummyLLM {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyLLM{Prefix: prefix}
}

var _ Agent = (*DummyLLM)(nil)

// Queue appends canned responses to return from subsequent calls.
func (d *DummyLLM) Queue(responses ...string) *DummyLLM {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses = append(d.responses, responses...)
	return d
}

// Fail makes every subsequent call return err.
func (d *DummyLLM) Fail(err error) *DummyLLM {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
	return d
}

// Prompts returns every prompt seen so far.
func (d *DummyLLM) Prompts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.prompts...)
}

func (d *DummyLLM) Generate(_ context.Context, prompt string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts = append(d.prompts, prompt)
	if d.err != nil {
		return "", d.err
	}
	if len(d.responses) > 0 {
		next := d.responses[0]
		d.responses = d.responses[1:]
		return next, nil
	}

	lines := strings.Split(prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return fmt.Sprintf("%s %s", d.Prefix, last), nil
}

func (d *DummyLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return d.Generate(ctx, prompt)
}
