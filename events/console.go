package events

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

// ANSI color codes
const (
	Blue    = "\033[94m"
	Green   = "\033[92m"
	Yellow  = "\033[93m"
	Cyan    = "\033[96m"
	Magenta = "\033[95m"
	Red     = "\033[91m"
	Bold    = "\033[1m"
	Dim     = "\033[2m"
	Reset   = "\033[0m"
)

// DomainColor returns the color for the aggregate family of an event type.
func DomainColor(t Type) string {
	switch domainOf(t) {
	case "reservation":
		return Blue
	case "prescription":
		return Magenta
	default:
		return Yellow
	}
}

// EventColor returns the color for an event type.
func EventColor(t Type) string {
	s := string(t)
	switch {
	case strings.HasSuffix(s, ".created"), strings.HasSuffix(s, ".submitted"), strings.HasSuffix(s, ".approved"):
		return Green
	case strings.HasSuffix(s, ".confirmed"), strings.HasSuffix(s, ".picked_up"), strings.HasSuffix(s, ".consumed"):
		return Cyan
	case strings.HasSuffix(s, ".cancelled"), strings.HasSuffix(s, ".expired"), strings.HasSuffix(s, ".rejected"), t == LowStockAlert:
		return Red
	default:
		return ""
	}
}

func domainOf(t Type) string {
	s := string(t)
	if idx := strings.Index(s, "."); idx >= 0 {
		return s[:idx]
	}
	return s
}

// ConsolePublisher pretty-prints events for local development.
type ConsolePublisher struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsolePublisher writes to out, or stdout when out is nil.
func NewConsolePublisher(out io.Writer) *ConsolePublisher {
	if out == nil {
		out = os.Stdout
	}
	return &ConsolePublisher{out: out}
}

func (p *ConsolePublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "%s%s%s\n", Bold, strings.Repeat("─", 60), Reset)
	fmt.Fprintf(&b, "%s%s[%s]%s %s%s%s  %s%s%s\n",
		Bold, DomainColor(e.Type), strings.ToUpper(domainOf(e.Type)), Reset,
		Dim, e.OccurredAt.Format("2006-01-02T15:04:05"), Reset,
		Cyan, e.AggregateID, Reset)
	fmt.Fprintf(&b, "%s%s%s%s\n", Bold, EventColor(e.Type), e.Type, Reset)
	fmt.Fprintln(&b, strings.Repeat("─", 60))

	keys := make([]string, 0, len(e.Payload))
	for k := range e.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s%s:%s %v\n", Dim, k, Reset, e.Payload[k])
	}

	_, err := io.WriteString(p.out, b.String())
	return err
}
