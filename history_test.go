package iptrace_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Travis-Britz/iptrace"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %s", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func TestReadLastMissingLog(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	_, ok, err := h.ReadLast(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("ReadLast failed: %s", err)
	}
	if ok {
		t.Fatalf("Expected no prior record")
	}
}

func TestReadLastBlankLog(t *testing.T) {
	dir := t.TempDir()
	h := iptrace.NewFileHistory(dir)
	for _, content := range []string{"", "\n", "\n\n  \n"} {
		if err := os.MkdirAll(filepath.Join(dir, "trace"), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(h.Path("alpha"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		_, ok, err := h.ReadLast(context.Background(), "alpha")
		if err != nil {
			t.Fatalf("ReadLast failed: %s", err)
		}
		if ok {
			t.Fatalf("Expected no prior record for %q", content)
		}
	}
}

func TestFirstRunRecording(t *testing.T) {
	for _, addr := range []string{"203.0.113.7", ""} {
		dir := t.TempDir()
		h := iptrace.NewFileHistory(dir)
		res, err := iptrace.AppendIfChanged(context.Background(), h, "alpha", addr, epoch)
		if err != nil {
			t.Fatalf("AppendIfChanged failed: %s", err)
		}
		if !res.Changed || res.HadPrevious {
			t.Fatalf("Expected a first record; got %+v", res)
		}
		lines := readLines(t, filepath.Join(dir, "trace", "alpha"))
		if len(lines) != 1 {
			t.Fatalf("Expected 1 record; got %d: %q", len(lines), lines)
		}
		if expected := addr + " 2024-03-01 12:00:00"; lines[0] != expected {
			t.Fatalf("Expected %q; got %q", expected, lines[0])
		}
	}
}

func TestUnchangedAddressIsNotAppended(t *testing.T) {
	dir := t.TempDir()
	h := iptrace.NewFileHistory(dir)
	ctx := context.Background()
	if _, err := iptrace.AppendIfChanged(ctx, h, "alpha", "1.2.3.4", epoch); err != nil {
		t.Fatal(err)
	}
	res, err := iptrace.AppendIfChanged(ctx, h, "alpha", "1.2.3.4", epoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("AppendIfChanged failed: %s", err)
	}
	if res.Changed {
		t.Fatalf("Expected no change; got %+v", res)
	}
	if !res.Current.ObservedAt.Equal(epoch) {
		t.Fatalf("Expected current record from %s; got %s", epoch, res.Current.ObservedAt)
	}
	if lines := readLines(t, h.Path("alpha")); len(lines) != 1 {
		t.Fatalf("Expected 1 record; got %d", len(lines))
	}
}

func TestSingleTransitionPerChange(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	ctx := context.Background()
	now := epoch
	for _, addr := range []string{"A", "A", "B", "B", "B", "C"} {
		if _, err := iptrace.AppendIfChanged(ctx, h, "alpha", addr, now); err != nil {
			t.Fatalf("AppendIfChanged(%q) failed: %s", addr, err)
		}
		now = now.Add(time.Minute)
	}
	lines := readLines(t, h.Path("alpha"))
	if len(lines) != 3 {
		t.Fatalf("Expected 3 records; got %d: %q", len(lines), lines)
	}
	for i, want := range []string{"A", "B", "C"} {
		if got := iptrace.ParseRecord(lines[i]).Address; got != want {
			t.Fatalf("record %d: Expected %q; got %q", i, want, got)
		}
	}
}

func TestEmptyAddressIsDistinct(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	ctx := context.Background()
	for _, addr := range []string{"", "", "1.2.3.4", ""} {
		if _, err := iptrace.AppendIfChanged(ctx, h, "alpha", addr, epoch); err != nil {
			t.Fatal(err)
		}
	}
	if lines := readLines(t, h.Path("alpha")); len(lines) != 3 {
		t.Fatalf("Expected 3 records; got %d: %q", len(lines), lines)
	}
	rec, ok, err := h.ReadLast(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("ReadLast: ok=%v err=%v", ok, err)
	}
	if rec.Address != "" {
		t.Fatalf("Expected empty address; got %q", rec.Address)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	ctx := context.Background()
	want := iptrace.Record{Address: "1.2.3.4,10.20.30.40", ObservedAt: epoch}
	if err := h.Append(ctx, "alpha", want); err != nil {
		t.Fatalf("Append failed: %s", err)
	}
	got, ok, err := h.ReadLast(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("ReadLast: ok=%v err=%v", ok, err)
	}
	if got.Address != want.Address {
		t.Fatalf("Expected %q; got %q", want.Address, got.Address)
	}
	if !got.ObservedAt.Equal(want.ObservedAt) {
		t.Fatalf("Expected %s; got %s", want.ObservedAt, got.ObservedAt)
	}

	line := readLines(t, h.Path("alpha"))[0]
	if i := strings.IndexAny(line, " \t"); line[:i] != want.Address {
		t.Fatalf("Expected address before the first space; got %q", line[:i])
	}
}

func TestReadLastLongLog(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	ctx := context.Background()
	for i := 0; i < 2000; i++ {
		rec := iptrace.Record{Address: fmt.Sprintf("10.0.%d.%d", i/256, i%256), ObservedAt: epoch}
		if err := h.Append(ctx, "alpha", rec); err != nil {
			t.Fatal(err)
		}
	}
	f, err := os.OpenFile(h.Path("alpha"), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("\n\n")
	f.Close()

	rec, ok, err := h.ReadLast(ctx, "alpha")
	if err != nil || !ok {
		t.Fatalf("ReadLast: ok=%v err=%v", ok, err)
	}
	if expected := "10.0.7.207"; rec.Address != expected {
		t.Fatalf("Expected %q; got %q", expected, rec.Address)
	}
}

func TestReadLastLongLine(t *testing.T) {
	dir := t.TempDir()
	h := iptrace.NewFileHistory(dir)
	long := strings.Repeat("1.2.3.4,", 1500) + "5.6.7.8"
	os.MkdirAll(filepath.Join(dir, "trace"), 0755)
	content := "9.9.9.9 2024-01-01 00:00:00\n" + long + " 2024-01-02 00:00:00\n"
	if err := os.WriteFile(h.Path("alpha"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	rec, ok, err := h.ReadLast(context.Background(), "alpha")
	if err != nil || !ok {
		t.Fatalf("ReadLast: ok=%v err=%v", ok, err)
	}
	if rec.Address != long {
		t.Fatalf("Expected the %d byte address; got %d bytes", len(long), len(rec.Address))
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		line string
		addr string
		ts   bool
	}{
		{"1.2.3.4 2024-03-01 12:00:00", "1.2.3.4", true},
		{"1.2.3.4 2024-03-01 12:00:00\r\n", "1.2.3.4", true},
		{" 2024-03-01 12:00:00", "", true},
		{"1.2.3.4", "1.2.3.4", false},
		{"1.2.3.4 yesterday", "1.2.3.4", false},
	}
	for _, tt := range tests {
		rec := iptrace.ParseRecord(tt.line)
		if rec.Address != tt.addr {
			t.Fatalf("%q: Expected address %q; got %q", tt.line, tt.addr, rec.Address)
		}
		if tt.ts == rec.ObservedAt.IsZero() {
			t.Fatalf("%q: Expected timestamp parsed=%v; got %s", tt.line, tt.ts, rec.ObservedAt)
		}
	}
}

func TestInvalidInput(t *testing.T) {
	h := iptrace.NewFileHistory(t.TempDir())
	ctx := context.Background()
	for _, host := range []string{"", ".", "..", "a/b", `a\b`} {
		if err := h.Append(ctx, host, iptrace.Record{Address: "1.2.3.4"}); !errors.Is(err, iptrace.ErrInvalidHost) {
			t.Fatalf("host %q: Expected ErrInvalidHost; got %v", host, err)
		}
	}
	if err := h.Append(ctx, "alpha", iptrace.Record{Address: "1.2.3.4\n5.6.7.8"}); !errors.Is(err, iptrace.ErrInvalidAddress) {
		t.Fatalf("Expected ErrInvalidAddress; got %v", err)
	}
}
