package universe

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeIndex(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, "sp500.csv", "symbol,name\naapl,Apple Inc.\nMSFT,Microsoft\n GOOGL ,Alphabet\n")

	got, err := NewLoader(dir).Load("SP500")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"AAPL", "MSFT", "GOOGL"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, "empty.csv", "symbol,name\n")

	got, err := NewLoader(dir).Load("empty")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewLoader(dir).Load("sp500")
	if err == nil {
		t.Fatal("Load of a missing index file succeeded")
	}
	if !strings.Contains(err.Error(), "sp500.csv") {
		t.Errorf("error %q does not name the missing file", err)
	}
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, "sp500.csv", "symbol,name\nMSFT,Microsoft\nAAPL,Apple\n")
	writeIndex(t, dir, "nasdaq100.csv", "symbol,name\nAAPL,Apple\nNVDA,NVIDIA\n")

	got, err := NewLoader(dir).LoadAll([]string{"sp500", "nasdaq100"})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	// Union is deduplicated and sorted.
	want := []string{"AAPL", "MSFT", "NVDA"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadAll = %v, want %v", got, want)
	}
}

func TestLoadAllMissingIndexFails(t *testing.T) {
	dir := t.TempDir()
	writeIndex(t, dir, "sp500.csv", "symbol,name\nAAPL,Apple\n")

	_, err := NewLoader(dir).LoadAll([]string{"sp500", "nikkei225"})
	if err == nil {
		t.Fatal("LoadAll with a missing index succeeded")
	}
}
