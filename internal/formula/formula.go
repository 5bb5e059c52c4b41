// Package formula parses one command-expression argument into an immutable
// Formula: [KEY][#COLOR][+DELAY…][:DEP…][|ACTION…]=CMD.
package formula

import (
	"fmt"
	"strings"
	"time"

	"multiplex/internal/color"
	"multiplex/internal/delay"
)

// On identifies which lifecycle edge a Dep waits for.
type On int

const (
	End On = iota
	Start
)

func (o On) String() string {
	if o == Start {
		return "START"
	}
	return "END"
}

// Dep is one ":TARGET[&][+DELAY…]" clause: wait for target to reach On,
// then wait the sum of After.
type Dep struct {
	Target string
	On     On
	After  []string // raw delay literals, preserved for canonical rendering
}

// AfterSum is the summed wait applied once the dependency's condition is met.
func (d Dep) AfterSum() (time.Duration, error) { return delay.Sum(d.After) }

// Action is one of the closed set of behavior modifiers.
type Action string

const (
	ActionEnd   Action = "END"
	ActionSilent Action = "SILENT"
	ActionNoout  Action = "NOOUT"
	ActionNoerr  Action = "NOERR"
)

var validActions = map[string]Action{
	"end":    ActionEnd,
	"silent": ActionSilent,
	"noout":  ActionNoout,
	"noerr":  ActionNoerr,
}

// Formula is the immutable, parsed description of one command argument.
type Formula struct {
	Name        string // empty means auto-assign
	ColorSpec   string // "" if no #COLOR given
	Color       color.Escape
	HasColor    bool
	StartDelays []string // raw delay literals
	Deps        []Dep
	Actions     map[Action]bool
	Argv        []string
	Raw         string // original argument text, for diagnostics
}

// StartDelaySum is the summed top-level "+DELAY" component.
func (f *Formula) StartDelaySum() (time.Duration, error) { return delay.Sum(f.StartDelays) }

// Has reports whether action a is set on the formula.
func (f *Formula) Has(a Action) bool { return f.Actions[a] }

var futureSyntax = "<>!@"

// Parse decomposes one positional argument into a Formula.
func Parse(arg string) (*Formula, error) {
	prefix, cmd, err := splitUnescapedEquals(arg)
	if err != nil {
		return nil, err
	}
	if strings.ContainsAny(prefix, futureSyntax) {
		return nil, fmt.Errorf("formula: redirect/output-start/guard syntax (<,>,!,@) is not implemented (see spec §9c): %q", arg)
	}

	f := &Formula{Actions: map[Action]bool{}, Raw: arg}

	p := newCursor(prefix)

	f.Name = p.takeWhile(isKeyRune)

	if p.peek() == '#' {
		p.next()
		colorTxt := p.takeUntilSpecial()
		if colorTxt == "" {
			return nil, fmt.Errorf("formula: empty color in %q", arg)
		}
		esc, err := color.Parse(colorTxt)
		if err != nil {
			return nil, fmt.Errorf("formula: %w (in %q)", err, arg)
		}
		f.ColorSpec = colorTxt
		f.Color = esc
		f.HasColor = true
	}

	for p.peek() == '+' {
		p.next()
		term := p.takeUntilSpecial()
		if term == "" {
			return nil, fmt.Errorf("formula: empty delay in %q", arg)
		}
		if _, err := delay.Parse(term); err != nil {
			return nil, fmt.Errorf("formula: %w (in %q)", err, arg)
		}
		f.StartDelays = append(f.StartDelays, term)
	}

	for p.peek() == ':' {
		p.next()
		dep := Dep{}
		dep.Target = p.takeWhile(isKeyRune)
		if p.peek() == '&' {
			p.next()
			dep.On = Start
		} else {
			dep.On = End
		}
		for p.peek() == '+' {
			p.next()
			term := p.takeUntilSpecial()
			if term == "" {
				return nil, fmt.Errorf("formula: empty delay in dep of %q", arg)
			}
			if _, err := delay.Parse(term); err != nil {
				return nil, fmt.Errorf("formula: %w (in %q)", err, arg)
			}
			dep.After = append(dep.After, term)
		}
		f.Deps = append(f.Deps, dep)
	}

	for p.peek() == '|' {
		p.next()
		name := p.takeWhile(func(r rune) bool { return r != '+' && r != ':' && r != '|' && r != '#' })
		action, ok := validActions[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("formula: unknown action %q in %q", name, arg)
		}
		f.Actions[action] = true
	}

	if !p.done() {
		return nil, fmt.Errorf("formula: unexpected %q at position %d in %q (prefix sections must appear in order KEY#COLOR+DELAY:DEP|ACTION)", p.rest(), p.i, arg)
	}

	argv, err := splitArgv(cmd)
	if err != nil {
		return nil, fmt.Errorf("formula: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("formula: empty command in %q", arg)
	}
	f.Argv = argv

	return f, nil
}

// splitUnescapedEquals finds the first '=' not preceded by a backslash
// escape and splits arg there. An empty prefix means the whole remainder
// (including any '=' signs) is the literal command.
func splitUnescapedEquals(arg string) (prefix, cmd string, err error) {
	runes := []rune(arg)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' {
			i++
			continue
		}
		if runes[i] == '=' {
			return string(runes[:i]), string(runes[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("formula: missing '=' in %q", arg)
}

func isKeyRune(r rune) bool {
	return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
}

// cursor is a tiny rune scanner over the prefix section of a formula.
type cursor struct {
	s []rune
	i int
}

func newCursor(s string) *cursor {
	return &cursor{s: []rune(s)}
}

func (c *cursor) peek() rune {
	if c.i >= len(c.s) {
		return 0
	}
	return c.s[c.i]
}

func (c *cursor) next() rune {
	r := c.peek()
	c.i++
	return r
}

func (c *cursor) done() bool { return c.i >= len(c.s) }

func (c *cursor) rest() string { return string(c.s[c.i:]) }

func (c *cursor) takeWhile(pred func(rune) bool) string {
	start := c.i
	for c.i < len(c.s) && pred(c.s[c.i]) {
		c.i++
	}
	return string(c.s[start:c.i])
}

// takeUntilSpecial consumes runes up to (not including) the next prefix
// delimiter (#, +, :, |) or end of input.
func (c *cursor) takeUntilSpecial() string {
	return c.takeWhile(func(r rune) bool {
		return r != '#' && r != '+' && r != ':' && r != '|'
	})
}
