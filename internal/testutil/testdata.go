package testutil

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// LoadJSON loads a JSON fixture from testdata relative to the repo root.
func LoadJSON(t *testing.T, rel string, v any) {
	t.Helper()
	data := readTestdata(t, rel)
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", rel, err)
	}
}

// LoadHex returns a trimmed hex string from testdata relative path.
func LoadHex(t *testing.T, rel string) string {
	t.Helper()
	return strings.TrimSpace(string(readTestdata(t, rel)))
}

// LoadBytes returns the decoded contents of a hex fixture.
func LoadBytes(t *testing.T, rel string) []byte {
	t.Helper()
	b, err := hex.DecodeString(LoadHex(t, rel))
	if err != nil {
		t.Fatalf("hex decode %s: %v", rel, err)
	}
	return b
}

// Fixtures lists the base names of every .hex file in a testdata directory.
func Fixtures(t *testing.T, dir string) []string {
	t.Helper()
	root := locate(t, dir)
	matches, err := filepath.Glob(filepath.Join(root, "*.hex"))
	if err != nil {
		t.Fatalf("glob %s: %v", dir, err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".hex"))
	}
	sort.Strings(names)
	return names
}

func readTestdata(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(locate(t, rel))
	if err != nil {
		t.Fatalf("read %s: %v", rel, err)
	}
	return data
}

func locate(t *testing.T, rel string) string {
	t.Helper()
	candidates := []string{
		filepath.Join("testdata", rel),
		filepath.Join("..", "testdata", rel),
		filepath.Join("..", "..", "testdata", rel),
		filepath.Join("..", "..", "..", "testdata", rel),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Fatalf("unable to locate testdata file %s", rel)
	return ""
}
