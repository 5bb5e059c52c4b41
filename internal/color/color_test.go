package color

import "testing"

func TestParseNamed(t *testing.T) {
	e, err := Parse("Red")
	if err != nil {
		t.Fatal(err)
	}
	if e.SGR != "\x1b[31m" {
		t.Fatalf("got %q", e.SGR)
	}
}

func TestParseHex(t *testing.T) {
	e, err := Parse("ff00aa")
	if err != nil {
		t.Fatal(err)
	}
	want := "\x1b[38;2;255;0;170m"
	if e.SGR != want {
		t.Fatalf("got %q want %q", e.SGR, want)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse("notacolor"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Parse("zzzzzz"); err == nil {
		t.Fatal("expected error")
	}
}

func TestWrapDisabled(t *testing.T) {
	e, _ := Parse("green")
	if got := e.Wrap("NAME", false); got != "NAME" {
		t.Fatalf("got %q", got)
	}
}
