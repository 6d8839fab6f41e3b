package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/opencode-ai/toolgate/internal/event"
)

// Printer writes bus traffic and invocation results in text or JSONL format.
type Printer struct {
	mu     sync.Mutex
	writer io.Writer
	format OutputFormat
	quiet  bool

	bus  *event.Bus
	subs []event.Subscription
}

// NewPrinter creates a new event printer.
func NewPrinter(writer io.Writer, format OutputFormat, quiet bool) *Printer {
	if format == "" {
		format = OutputText
	}
	return &Printer{
		writer: writer,
		format: format,
		quiet:  quiet,
	}
}

// Subscribe starts printing requests, responses and mode changes from bus.
// In quiet mode nothing is subscribed.
func (p *Printer) Subscribe(bus *event.Bus) {
	if p.quiet {
		return
	}
	p.bus = bus
	p.subs = []event.Subscription{
		subscribe(p, func(r event.ToolConfirmationRequest) string {
			line := fmt.Sprintf("[confirm] %s (%s mode", r.Title, r.Mode)
			if r.Rule != "" {
				line += ", rule " + r.Rule
			}
			line += ")"
			if r.Reason != "" {
				line += ": " + r.Reason
			}
			return line
		}),
		subscribe(p, func(r event.ToolConfirmationResponse) string {
			line := fmt.Sprintf("[answer] %s %s", shortID(r.CorrelationID), r.Outcome)
			if r.Feedback != "" {
				line += ": " + r.Feedback
			}
			return line
		}),
		subscribe(p, func(r event.QuestionRequest) string {
			headers := make([]string, len(r.Questions))
			for i, q := range r.Questions {
				headers[i] = q.Header
			}
			return "[question] " + strings.Join(headers, ", ")
		}),
		subscribe(p, func(r event.QuestionResponse) string {
			if r.Dismissed {
				return fmt.Sprintf("[answer] %s dismissed", shortID(r.CorrelationID))
			}
			return fmt.Sprintf("[answer] %s %d answer(s)", shortID(r.CorrelationID), len(r.Answers))
		}),
		subscribe(p, func(r event.PlanApprovalRequest) string {
			return "[plan] approval requested"
		}),
		subscribe(p, func(r event.PlanApprovalResponse) string {
			if r.Approved {
				return fmt.Sprintf("[plan] approved, continuing in %s mode", r.Mode)
			}
			return "[plan] rejected"
		}),
		subscribe(p, func(r event.ModeChanged) string {
			return fmt.Sprintf("[mode] %s -> %s", r.Previous, r.Current)
		}),
	}
}

// Unsubscribe stops listening to events.
func (p *Printer) Unsubscribe() {
	for _, s := range p.subs {
		p.bus.Unsubscribe(s)
	}
	p.subs = nil
}

func subscribe[M event.Message](p *Printer, text func(M) string) event.Subscription {
	return event.Subscribe(p.bus, func(_ context.Context, msg M) error {
		p.emit(string(msg.Kind()), msg, text(msg))
		return nil
	})
}

// ResultData is the JSONL payload of a finished script line.
type ResultData struct {
	Line   string `json:"line"`
	Title  string `json:"title,omitempty"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Exit   int    `json:"exit"`
}

// PrintResult prints the outcome of one script line.
func (p *Printer) PrintResult(line, title, output string, err error) {
	data := ResultData{Line: line, Title: title, Output: output, Exit: int(ExitCodeFor(err))}
	var text string
	if err != nil {
		data.Error = err.Error()
		text = "[error] " + err.Error()
	} else {
		text = output
		if title != "" {
			text = "[" + title + "]\n" + output
		}
	}
	p.emit("result", data, text)
}

func (p *Printer) emit(kind string, data any, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case OutputJSONL:
		b, err := json.Marshal(NewEvent(kind, data))
		if err != nil {
			return
		}
		fmt.Fprintln(p.writer, string(b))
	default:
		fmt.Fprintln(p.writer, text)
	}
}

// shortID returns the last 8 characters of an ID for display.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
