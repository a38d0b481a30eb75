package credentials

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRotateIsCyclic(t *testing.T) {
	for n := 2; n <= 5; n++ {
		keys := make([]string, n)
		for i := range keys {
			keys[i] = string(rune('A' + i))
		}
		pool := New(keys...)

		start, ok := pool.Current()
		if !ok {
			t.Fatalf("n=%d: expected a credential", n)
		}

		for i := 0; i < n; i++ {
			if !pool.Rotate() {
				t.Fatalf("n=%d: rotate %d returned false", n, i)
			}
			if i < n-1 {
				if cur, _ := pool.Current(); cur == start {
					t.Fatalf("n=%d: returned to start too early at step %d", n, i)
				}
			}
		}

		if cur, _ := pool.Current(); cur != start {
			t.Fatalf("n=%d: expected %q after full cycle, got %q", n, start, cur)
		}
	}
}

func TestRotateSmallPools(t *testing.T) {
	empty := New()
	if empty.Rotate() {
		t.Fatal("expected rotate on empty pool to return false")
	}
	if _, ok := empty.Current(); ok {
		t.Fatal("expected no credential in empty pool")
	}

	single := New("only")
	for i := 0; i < 3; i++ {
		if single.Rotate() {
			t.Fatal("expected rotate on single pool to return false")
		}
		if cur, ok := single.Current(); !ok || cur != "only" {
			t.Fatalf("unexpected current credential: %q", cur)
		}
	}

	var nilPool *Pool
	if nilPool.Rotate() || nilPool.Len() != 0 {
		t.Fatal("expected nil pool to behave as empty")
	}
}

func TestNewNormalizes(t *testing.T) {
	pool := New("  a ", "", "b", "a", "\t", "c ")
	if pool.Len() != 3 {
		t.Fatalf("expected 3 keys, got %d", pool.Len())
	}

	var got []string
	for i := 0; i < pool.Len(); i++ {
		cur, _ := pool.Current()
		got = append(got, cur)
		pool.Rotate()
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}

func TestRotateFrom(t *testing.T) {
	pool := New("A", "B", "C")

	if !pool.RotateFrom("A") {
		t.Fatal("expected rotation away from A")
	}
	if cur, _ := pool.Current(); cur != "B" {
		t.Fatalf("expected B, got %s", cur)
	}

	// A second request that also failed on A must not skip B.
	if !pool.RotateFrom("A") {
		t.Fatal("expected true since current already differs from A")
	}
	if cur, _ := pool.Current(); cur != "B" {
		t.Fatalf("expected B to stay current, got %s", cur)
	}

	if New("solo").RotateFrom("solo") {
		t.Fatal("expected false for single credential pool")
	}
}

func TestRotateConcurrent(t *testing.T) {
	pool := New("A", "B", "C", "D")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Rotate()
			pool.Current()
		}()
	}
	wg.Wait()

	if idx := pool.Index(); idx != 0 {
		t.Fatalf("expected index 0 after 40 rotations of 4 keys, got %d", idx)
	}
}

func TestLoadMergesSources(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "keys.txt")
	if err := os.WriteFile(file, []byte("file-1\nprimary\n"), 0o600); err != nil {
		t.Fatalf("write keys: %v", err)
	}

	env := map[string]string{
		"GEMINI_API_KEY":   "env-0",
		"GEMINI_API_KEY_1": "env-1",
		"GEMINI_API_KEY_2": "env-2",
		"GEMINI_API_KEY_4": "unreachable",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	pool := Load(Source{
		Key:         "primary",
		Keys:        []string{"list-1", " list-2 "},
		KeyFiles:    []string{file, filepath.Join(dir, "missing.txt")},
		EnvPrefixes: []string{"GEMINI_API_KEY"},
	}, lookup, zap.NewNop())

	var got []string
	for i := 0; i < pool.Len(); i++ {
		cur, _ := pool.Current()
		got = append(got, cur)
		pool.Rotate()
	}

	want := []string{"primary", "list-1", "list-2", "file-1", "env-0", "env-1", "env-2"}
	if len(got) != len(want) {
		t.Fatalf("unexpected keys: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected keys: %v", got)
		}
	}
}

func TestLoadShuffleKeepsSet(t *testing.T) {
	pool := Load(Source{Keys: []string{"a", "b", "c", "d"}, Shuffle: true}, nil, nil)

	var got []string
	for i := 0; i < pool.Len(); i++ {
		cur, _ := pool.Current()
		got = append(got, cur)
		pool.Rotate()
	}
	sort.Strings(got)
	if len(got) != 4 || got[0] != "a" || got[3] != "d" {
		t.Fatalf("unexpected keys after shuffle: %v", got)
	}
}

func TestLoadEmptyIsNotFatal(t *testing.T) {
	core, observed := observer.New(zapcore.WarnLevel)

	pool := Load(Source{KeyFile: "/does/not/exist"}, func(string) (string, bool) { return "", false }, zap.New(core))
	if pool.Len() != 0 {
		t.Fatalf("expected empty pool, got %d", pool.Len())
	}
	if observed.Len() != 2 {
		t.Fatalf("expected warnings for missing file and empty pool, got %d", observed.Len())
	}
}

func TestLoadReportsOnce(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)

	pool := Load(Source{Key: "a", Keys: []string{"b"}}, nil, zap.New(core))
	if pool.Len() != 2 {
		t.Fatalf("expected two keys, got %d", pool.Len())
	}
	if observed.Len() != 1 {
		t.Fatalf("expected a single log entry, got %d: %v", observed.Len(), observed.All())
	}
	if got := observed.FilterMessage("api keys loaded").Len(); got != 1 {
		t.Fatalf("expected the loaded message once, got %d", got)
	}
}
