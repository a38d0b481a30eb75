package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPrefersFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	if err := os.WriteFile(path, []byte("  from-file \n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := Load(Source{Name: "gemini api key", Value: "inline", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, []byte("   "), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cases := []struct {
		name   string
		src    Source
		expect string
	}{
		{name: "not configured", src: Source{Name: "key"}, expect: "key is not configured"},
		{name: "default name", src: Source{}, expect: "secret is not configured"},
		{name: "empty file", src: Source{Name: "key", File: empty}, expect: "is empty"},
		{name: "missing file", src: Source{Name: "key", File: filepath.Join(dir, "nope")}, expect: "reading key from file"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.expect) {
				t.Fatalf("expected %q in %q", tc.expect, err.Error())
			}
		})
	}
}

func TestLoadLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys")
	content := "# primary\nkey-a\n\n  key-b  \n#key-c\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	got, err := LoadLines(Source{Name: "keys", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "key-a" || got[1] != "key-b" {
		t.Fatalf("unexpected keys: %v", got)
	}
}

func TestFingerprint(t *testing.T) {
	if Fingerprint("  ") != "" {
		t.Fatal("expected empty fingerprint for blank secret")
	}

	a := Fingerprint("AIza-secret-one")
	b := Fingerprint("AIza-secret-two")
	if a == b {
		t.Fatal("expected different fingerprints")
	}
	if strings.Contains(a, "secret") {
		t.Fatalf("fingerprint leaks secret: %s", a)
	}
	if a != Fingerprint(" AIza-secret-one ") {
		t.Fatal("expected fingerprint to ignore surrounding whitespace")
	}
}
