package models

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/engram-ai/engram/src/cache"
)

// CachedLLM wraps an Agent and caches Generate calls. With a file path
// the cache survives restarts, which keeps repeated extraction prompts
// off the backend entirely.
type CachedLLM struct {
	Agent    Agent
	Cache    *cache.LRUCache
	FilePath string
}

// NewCachedLLM creates a new CachedLLM wrapper.
func NewCachedLLM(agent Agent, size int, ttl time.Duration, filePath string) *CachedLLM {
	c := &CachedLLM{
		Agent:    agent,
		Cache:    cache.NewLRUCache(size, ttl),
		FilePath: filePath,
	}
	if filePath != "" {
		c.load()
	}
	return c
}

var _ Agent = (*CachedLLM)(nil)

func (c *CachedLLM) load() {
	f, err := os.Open(c.FilePath)
	if err != nil {
		return // ignore errors (file not found, etc)
	}
	defer f.Close()

	var dump map[string]cache.CacheEntry
	if err := json.NewDecoder(f).Decode(&dump); err == nil {
		c.Cache.Restore(dump)
	}
}

func (c *CachedLLM) save() {
	if c.FilePath == "" {
		return
	}
	dump := c.Cache.Dump()

	// Atomic write: write to temp, then rename
	tmp := c.FilePath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return
	}

	if err := json.NewEncoder(f).Encode(dump); err != nil {
		f.Close()
		os.Remove(tmp)
		return
	}
	f.Close()
	os.Rename(tmp, c.FilePath)
}

// Generate checks the cache before calling the underlying agent.
func (c *CachedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return c.cached(ctx, "gen:", prompt, c.Agent.Generate)
}

// GenerateJSON caches under a separate key space so a plain completion
// never shadows a JSON-mode one for the same prompt.
func (c *CachedLLM) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return c.cached(ctx, "json:", prompt, c.Agent.GenerateJSON)
}

func (c *CachedLLM) cached(ctx context.Context, keyspace, prompt string, call func(context.Context, string) (string, error)) (string, error) {
	key := cache.HashKey(keyspace + prompt)
	if val, ok := c.Cache.Get(key); ok {
		if text, ok := val.(string); ok {
			return text, nil
		}
	}

	res, err := call(ctx, prompt)
	if err != nil {
		return "", err
	}

	c.Cache.Set(key, res)
	c.save()
	return res, nil
}

// TryCreateCachedLLM checks env vars and wraps the agent if caching is enabled.
func TryCreateCachedLLM(agent Agent) Agent {
	sizeStr := os.Getenv("ENGRAM_LLM_CACHE_SIZE")
	if sizeStr == "" {
		return agent
	}

	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return agent
	}

	ttlStr := os.Getenv("ENGRAM_LLM_CACHE_TTL")
	ttl := 300 * time.Second // default 5 mins
	if ttlStr != "" {
		if sec, err := strconv.Atoi(ttlStr); err == nil && sec > 0 {
			ttl = time.Duration(sec) * time.Second
		}
	}

	path := os.Getenv("ENGRAM_LLM_CACHE_PATH")
	if path == "" {
		path = ".engram_cache.json"
	}

	return NewCachedLLM(agent, size, ttl, path)
}
