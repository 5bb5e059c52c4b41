package emit

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"multiplex/internal/color"
)

func TestEmitNoTime(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, false, NoTime, time.Now())
	e.SpawnLine("A", color.Escape{}, false, "echo hello from A")
	got := buf.String()
	want := "$│A│echo hello from A\n"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEmitStdoutLine(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, false, NoTime, time.Now())
	e.Line(Stdout, "A", color.Escape{}, false, "hello from A")
	if got, want := buf.String(), "<│A│hello from A\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEmitExitLine(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, false, NoTime, time.Now())
	e.ExitLine("A", color.Escape{}, false, 0)
	if got, want := buf.String(), "=│A│0\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEmitRelativeTimestamp(t *testing.T) {
	var buf bytes.Buffer
	start := time.Now().Add(-1 * time.Second)
	e := New(&buf, false, Relative, start)
	e.Note("*", "timeout")
	got := buf.String()
	if !strings.HasPrefix(got, "00:00:0") {
		t.Fatalf("expected ~1s elapsed prefix, got %q", got)
	}
	if !strings.Contains(got, "*│*│timeout") {
		t.Fatalf("missing record body: %q", got)
	}
}

func TestEmitColorWrapsNameOnly(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, true, NoTime, time.Now())
	esc, err := color.Parse("red")
	if err != nil {
		t.Fatal(err)
	}
	e.SpawnLine("A", esc, true, "echo hi")
	got := buf.String()
	if !strings.Contains(got, "\x1b[31mA\x1b[0m") {
		t.Fatalf("name not colorized: %q", got)
	}
	if strings.Contains(got, "\x1b[31mecho") {
		t.Fatalf("payload should not be colorized: %q", got)
	}
}

func TestEmitSerializesConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	e := New(&buf, false, NoTime, time.Now())
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(i int) {
			e.Line(Stdout, "A", color.Escape{}, false, strings.Repeat("x", 20))
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "<│A│") {
			t.Fatalf("interleaved or malformed line: %q", line)
		}
	}
}
