// Package credentials holds the API keys used for generation calls and the
// rotation state shared by all requests of a process.
package credentials

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/secrets"
)

// maxNumbered bounds the scan of numbered environment variables.
const maxNumbered = 64

// EnvLookup resolves an environment variable. os.LookupEnv satisfies it.
type EnvLookup func(key string) (string, bool)

// Source lists every place a credential may come from. All of them are
// optional and merged in field order.
type Source struct {
	Key      string
	Keys     []string
	KeyFile  string
	KeyFiles []string
	// EnvPrefixes are scanned as PREFIX, PREFIX_1, PREFIX_2, ... until the first gap.
	EnvPrefixes []string
	Shuffle     bool
}

// Pool is an ordered set of credentials with a rotation index.
type Pool struct {
	mu    sync.Mutex
	keys  []string
	index int
}

// New builds a pool from already resolved keys. Keys are trimmed, empty
// entries dropped and duplicates removed keeping the first occurrence.
func New(keys ...string) *Pool {
	return &Pool{keys: normalize(keys)}
}

// Load collects credentials from src. Missing or unreadable sources are
// logged and skipped, so the result may be an empty pool.
func Load(src Source, lookup EnvLookup, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}

	var keys []string
	keys = append(keys, src.Key)
	keys = append(keys, src.Keys...)

	files := append([]string{src.KeyFile}, src.KeyFiles...)
	for _, file := range files {
		file = strings.TrimSpace(file)
		if file == "" {
			continue
		}
		lines, err := secrets.LoadLines(secrets.Source{Name: "api key", File: file})
		if err != nil {
			logger.Warn("skipping api key file", zap.String("file", file), zap.Error(err))
			continue
		}
		keys = append(keys, lines...)
	}

	if lookup != nil {
		for _, prefix := range src.EnvPrefixes {
			keys = append(keys, numbered(strings.TrimSpace(prefix), lookup)...)
		}
	}

	pool := New(keys...)
	if src.Shuffle && len(pool.keys) > 1 {
		rand.Shuffle(len(pool.keys), func(i, j int) {
			pool.keys[i], pool.keys[j] = pool.keys[j], pool.keys[i]
		})
	}

	if pool.Len() == 0 {
		logger.Warn("no api keys configured; generation features are unavailable",
			zap.String("hint", "set ai.gemini.api-key(s), ai.gemini.api-key-file(s) or GEMINI_API_KEY"),
		)
	} else {
		logger.Info("api keys loaded", zap.Int("count", pool.Len()))
	}

	return pool
}

// Len returns the number of credentials in the pool.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

// Index returns the current rotation index.
func (p *Pool) Index() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index
}

// Current returns the credential at the rotation index. The second value is
// false when the pool is empty.
func (p *Pool) Current() (string, bool) {
	if p == nil {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", false
	}
	return p.keys[p.index%len(p.keys)], true
}

// Snapshot returns the current credential together with its index.
func (p *Pool) Snapshot() (string, int, bool) {
	if p == nil {
		return "", 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) == 0 {
		return "", 0, false
	}
	idx := p.index % len(p.keys)
	return p.keys[idx], idx, true
}

// Rotate advances to the next credential. It reports false and leaves the
// pool untouched when there is nothing to rotate to.
func (p *Pool) Rotate() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advance()
}

// RotateFrom advances only while key is still the current credential, so two
// requests failing on the same key rotate once. It reports whether the
// current credential differs from key afterwards.
func (p *Pool) RotateFrom(key string) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) <= 1 {
		return false
	}
	if p.keys[p.index%len(p.keys)] != key {
		return true
	}
	return p.advance()
}

func (p *Pool) advance() bool {
	if len(p.keys) <= 1 {
		return false
	}
	p.index = (p.index + 1) % len(p.keys)
	return true
}

func numbered(prefix string, lookup EnvLookup) []string {
	if prefix == "" {
		return nil
	}

	var keys []string
	if v, ok := lookup(prefix); ok {
		keys = append(keys, v)
	}

	for i := 1; i <= maxNumbered; i++ {
		v, ok := lookup(prefix + "_" + strconv.Itoa(i))
		if !ok {
			break
		}
		keys = append(keys, v)
	}

	return keys
}

func normalize(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
