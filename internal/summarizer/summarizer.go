package summarizer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyContent      = errors.New("file content cannot be empty")
	ErrProviderFailed    = errors.New("summarization provider failed")
	ErrNoProviderEnabled = errors.New("no summarization provider configured")
	ErrUnknownProvider   = errors.New("unknown summarization provider")
)

// Request represents one file to summarize
type Request struct {
	Path    string // Relative file path, included in the prompt
	Content string
	Context string // Optional extra context (group name, neighboring files)
	Model   string // Optional: override the provider default
}

// Summary is the provider's result for one file
type Summary struct {
	Text     string
	Provider string
	Model    string
	Hash     string // Content hash, used for caching
}

// Summarizer turns file content into a concise natural-language summary.
// Implementations may time out or fail; callers treat any error as an
// ordinary per-file failure subject to retry policy.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*Summary, error)
	Provider() string
	Model() string
	Close() error
}

// Cache provides in-memory LRU caching of summaries by content hash
type Cache struct {
	cache *lru.Cache[string, *Summary]
}

// NewCache creates a summary cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 4096
	}
	cache, err := lru.New[string, *Summary](maxLen)
	if err != nil {
		cache, _ = lru.New[string, *Summary](4096)
	}
	return &Cache{cache: cache}
}

// Get retrieves a copy of a cached summary
func (c *Cache) Get(hash string) (*Summary, bool) {
	s, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Set stores a summary; LRU eviction handles capacity
func (c *Cache) Set(hash string, s *Summary) {
	c.cache.Add(hash, s)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// ComputeHash computes the SHA-256 hash of content for caching
func ComputeHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// ValidateRequest validates a summarization request
func ValidateRequest(req Request) error {
	if req.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
