package formula

import (
	"reflect"
	"testing"
)

func TestParseBasic(t *testing.T) {
	f, err := Parse("A=echo hello from A")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "A" {
		t.Fatalf("name = %q", f.Name)
	}
	if !reflect.DeepEqual(f.Argv, []string{"echo", "hello", "from", "A"}) {
		t.Fatalf("argv = %v", f.Argv)
	}
}

func TestParseEmptyPrefix(t *testing.T) {
	f, err := Parse("=echo a=b")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "" {
		t.Fatalf("name = %q, want empty (auto-assign)", f.Name)
	}
	if !reflect.DeepEqual(f.Argv, []string{"echo", "a=b"}) {
		t.Fatalf("argv = %v", f.Argv)
	}
}

func TestParseFull(t *testing.T) {
	f, err := Parse("DB#red+1s:API&+500ms|end|silent=pg_ctl start")
	if err != nil {
		t.Fatal(err)
	}
	if f.Name != "DB" || f.ColorSpec != "red" {
		t.Fatalf("name=%q color=%q", f.Name, f.ColorSpec)
	}
	if len(f.StartDelays) != 1 || f.StartDelays[0] != "1s" {
		t.Fatalf("start delays = %v", f.StartDelays)
	}
	if len(f.Deps) != 1 {
		t.Fatalf("deps = %v", f.Deps)
	}
	dep := f.Deps[0]
	if dep.Target != "API" || dep.On != Start || len(dep.After) != 1 || dep.After[0] != "500ms" {
		t.Fatalf("dep = %+v", dep)
	}
	if !f.Has(ActionEnd) || !f.Has(ActionSilent) {
		t.Fatalf("actions = %v", f.Actions)
	}
}

func TestParseDepNoTarget(t *testing.T) {
	f, err := Parse("+2:&+1s=echo now")
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Deps) != 1 || f.Deps[0].Target != "" {
		t.Fatalf("deps = %+v", f.Deps)
	}
}

func TestParseUnknownAction(t *testing.T) {
	if _, err := Parse("A|bogus=echo hi"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseMissingEquals(t *testing.T) {
	if _, err := Parse("justtext"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseEmptyCommand(t *testing.T) {
	if _, err := Parse("A="); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseOutOfOrderRejected(t *testing.T) {
	// Color must come before delays; this reverses them and must fail.
	if _, err := Parse("A+1s#red=echo hi"); err == nil {
		t.Fatal("expected error for out-of-order sections")
	}
}

func TestParseFutureSyntaxRejected(t *testing.T) {
	if _, err := Parse("A<input.txt=cat"); err == nil {
		t.Fatal("expected error for redirect syntax")
	}
}

func TestParseQuotedArgv(t *testing.T) {
	f, err := Parse(`A=echo "hello world" 'lit \n' a\ b`)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"echo", "hello world", `lit \n`, "a b"}
	if !reflect.DeepEqual(f.Argv, want) {
		t.Fatalf("argv = %#v, want %#v", f.Argv, want)
	}
}
