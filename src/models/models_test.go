package models

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestDummyQueueOrder(t *testing.T) {
	d := NewDummyLLM("").Queue("first", "second")
	ctx := context.Background()

	if got, _ := d.Generate(ctx, "p1"); got != "first" {
		t.Fatalf("got %q", got)
	}
	if got, _ := d.GenerateJSON(ctx, "p2"); got != "second" {
		t.Fatalf("got %q", got)
	}
	// Drained queue falls back to echoing.
	if got, _ := d.Generate(ctx, "hello\nworld"); got != "Dummy response: world" {
		t.Fatalf("fallback got %q", got)
	}
	if prompts := d.Prompts(); len(prompts) != 3 {
		t.Fatalf("recorded %d prompts", len(prompts))
	}
}

func TestDummyFail(t *testing.T) {
	boom := errors.New("boom")
	d := NewDummyLLM("").Fail(boom)
	if _, err := d.Generate(context.Background(), "p"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestCachedLLMAvoidsSecondCall(t *testing.T) {
	d := NewDummyLLM("").Queue("answer", "should never be served")
	c := NewCachedLLM(d, 8, time.Minute, "")
	ctx := context.Background()

	first, err := c.Generate(ctx, "same prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := c.Generate(ctx, "same prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first != "answer" || second != "answer" {
		t.Fatalf("got %q then %q", first, second)
	}
	if calls := len(d.Prompts()); calls != 1 {
		t.Fatalf("backend called %d times, want 1", calls)
	}
}

func TestCachedLLMSeparatesJSONKeyspace(t *testing.T) {
	d := NewDummyLLM("").Queue("plain", `{"json":true}`)
	c := NewCachedLLM(d, 8, time.Minute, "")
	ctx := context.Background()

	if got, _ := c.Generate(ctx, "p"); got != "plain" {
		t.Fatalf("got %q", got)
	}
	if got, _ := c.GenerateJSON(ctx, "p"); got != `{"json":true}` {
		t.Fatalf("json call served plain cache entry: %q", got)
	}
}

func TestCachedLLMPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")

	first := NewCachedLLM(NewDummyLLM("").Queue("persisted"), 8, time.Minute, path)
	if got, _ := first.Generate(context.Background(), "p"); got != "persisted" {
		t.Fatalf("got %q", got)
	}

	// A fresh wrapper over an empty backend must serve from disk.
	empty := NewDummyLLM("").Fail(errors.New("backend should not be hit"))
	second := NewCachedLLM(empty, 8, time.Minute, path)
	got, err := second.Generate(context.Background(), "p")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "persisted" {
		t.Fatalf("got %q", got)
	}
}
