// Package printer writes human-facing command output: status lines, chat
// messages, peer tables and error boxes.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hay-kot/criterio"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/styles"
)

// ANSI color codes (Tokyo Night palette)
const (
	ColorReset     = "\033[0m"
	ColorRed       = "\033[38;2;215;95;107m"  // #d75f6b
	ColorGreen     = "\033[38;2;158;206;106m" // #9ece6a
	ColorYellow    = "\033[38;2;224;175;104m" // #e0af68
	ColorGray      = "\033[38;2;86;95;137m"   // #565f89
	ColorBold      = "\033[1m"
	ColorUnderline = "\033[4m"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer handles formatted output with colors and styles
type Printer struct {
	writer io.Writer
	plain  bool
}

// New creates a new Printer that writes to the given writer
func New(w io.Writer) *Printer {
	return &Printer{writer: w}
}

// WithPlain disables ANSI colors.
func (p *Printer) WithPlain(plain bool) *Printer {
	p.plain = plain
	return p
}

// NewContext returns a context with the printer attached
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError prints a formatted error box and does NOT exit
// Caller should handle exit code
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.printValidationErrors(err, fieldErrs)
		return
	}

	lines := []string{
		p.colorize(ColorRed, "╭ Error"),
		p.colorize(ColorRed, "│") + " " + p.colorize(ColorGray, err.Error()),
	}
	if hint := hintFor(err); hint != "" {
		lines = append(lines, p.colorize(ColorRed, "│"), p.colorize(ColorRed, "│")+" "+hint)
	}
	lines = append(lines, p.colorize(ColorRed, "╵"))

	p.write(strings.Join(lines, "\n") + "\n")
}

// hintFor suggests a next step for the chat error taxonomy.
func hintFor(err error) string {
	switch {
	case errors.Is(err, chat.ErrPeerNotFound):
		return "add the peer first: parley peers add <user> <host:port>"
	case errors.Is(err, chat.ErrDeliveryFailed):
		return "the message was stored locally; the peer may be offline"
	case errors.Is(err, chat.ErrStorageUnavailable):
		return "check the storage settings with: parley config validate"
	default:
		return ""
	}
}

// printValidationErrors formats criterio.FieldErrors nicely
func (p *Printer) printValidationErrors(wrappedErr error, fieldErrs criterio.FieldErrors) {
	// Context is whatever wraps the field errors, e.g. "load config: invalid config:"
	errStr := wrappedErr.Error()
	fieldErrStr := fieldErrs.Error()

	errContext := ""
	if idx := strings.Index(errStr, fieldErrStr); idx > 0 {
		errContext = strings.TrimSuffix(errStr[:idx], ": ")
	}

	p.write(p.colorize(ColorRed, "╭ Validation Error") + "\n")

	if errContext != "" {
		p.write(p.colorize(ColorRed, "│") + " " + p.colorize(ColorGray, errContext) + "\n")
		p.write(p.colorize(ColorRed, "│") + "\n")
	}

	for _, fe := range fieldErrs {
		line := p.colorize(ColorRed, "│") + " " + p.colorize(ColorRed, Cross) + " "
		if fe.Field != "" {
			line += p.colorize(ColorGray, fe.Field+": ")
		}
		line += fe.Err.Error()
		p.write(line + "\n")
	}

	p.write(p.colorize(ColorRed, "╵") + "\n")
}

// Errorf prints an error message in red
func (p *Printer) Errorf(format string, args ...any) {
	p.write(p.colorize(ColorRed, Cross+" "+fmt.Sprintf(format, args...)) + "\n")
}

// Successf prints a success message in green
func (p *Printer) Successf(format string, args ...any) {
	p.write(p.colorize(ColorGreen, Check+" "+fmt.Sprintf(format, args...)) + "\n")
}

// Infof prints an info message in gray
func (p *Printer) Infof(format string, args ...any) {
	p.write(p.colorize(ColorGray, Dot+" "+fmt.Sprintf(format, args...)) + "\n")
}

// Warnf prints a warning message in yellow
func (p *Printer) Warnf(format string, args ...any) {
	p.write(p.colorize(ColorYellow, Dot+" "+fmt.Sprintf(format, args...)) + "\n")
}

// Printf prints a plain message without colors
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...) + "\n")
}

// Section prints a section header (bold + underlined)
func (p *Printer) Section(title string) {
	if p.plain {
		p.write(title + "\n")
		return
	}
	p.write(ColorBold + ColorUnderline + title + ColorReset + "\n")
}

// CheckItem prints a success item with green checkmark
func (p *Printer) CheckItem(label, detail string) {
	p.printItem(ColorGreen, Check, label, detail)
}

// WarnItem prints a warning item with yellow dot
func (p *Printer) WarnItem(label, detail string) {
	p.printItem(ColorYellow, Dot, label, detail)
}

// FailItem prints a failure item with red cross
func (p *Printer) FailItem(label, detail string) {
	p.printItem(ColorRed, Cross, label, detail)
}

func (p *Printer) printItem(color, symbol, label, detail string) {
	line := "  " + p.colorize(color, symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.write(line + "\n")
}

// Message prints one chat message as seen by self.
func (p *Printer) Message(m chat.Message, self string) {
	if p.plain {
		p.write(fmt.Sprintf("%s %s -> %s: %s\n", m.SentAt.Local().Format(time.DateTime), m.Sender, m.Receiver, m.Text))
		return
	}
	p.write(styles.RenderMessage(m, self) + "\n")
}

// Messages prints msgs in order, or a note when there are none.
func (p *Printer) Messages(msgs []chat.Message, self, empty string) {
	if len(msgs) == 0 {
		p.Infof("%s", empty)
		return
	}
	for _, m := range msgs {
		p.Message(m, self)
	}
}

// PeerTable prints peers with their address, last sighting and presence.
func (p *Printer) PeerTable(peers []chat.Peer, now time.Time, window time.Duration) {
	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "USERNAME\tADDRESS\tLAST SEEN\tSTATUS")

	for _, peer := range peers {
		addr := peer.Address
		if addr == "" {
			addr = "-"
		}
		status := chat.Classify(peer, now, window)
		label := string(status)
		if !p.plain {
			label = styles.RenderStatus(status)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", peer.Username, addr, lastSeen(peer.LastSeen, now), label)
	}
	_ = w.Flush()
}

func lastSeen(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String() + " ago"
}

func (p *Printer) write(s string) {
	_, _ = p.writer.Write([]byte(s))
}

// colorize applies ANSI color codes to text
func (p *Printer) colorize(color, text string) string {
	if p.plain {
		return text
	}
	return color + text + ColorReset
}
