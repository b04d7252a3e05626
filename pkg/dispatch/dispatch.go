// Package dispatch implements the CommandDispatcher: it parses REPL verbs
// into handler calls, enforces each verb's preconditions (must be logged
// in, valid domain syntax, etc.), and records every invocation to the
// command history table.
//
// The verb-to-handler map mirrors the command_handlers dict the original
// CLI keeps: one function per verb, looked up by name at dispatch time
// rather than a long if/else chain.
package dispatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hsyst/hps-cli/pkg/client"
	"github.com/Hsyst/hps-cli/pkg/hpserr"
	"github.com/Hsyst/hps-cli/pkg/types"
)

var domainPattern = regexp.MustCompile(`^[a-z0-9-]+(\.[a-z0-9-]+)*$`)

// IsValidDomain reports whether domain matches the naming grammar this
// protocol accepts for dns-reg/dns-res.
func IsValidDomain(domain string) bool {
	return domainPattern.MatchString(domain)
}

// Result is what every handler returns and what the REPL/controller log
// renders to the user.
type Result struct {
	Success bool
	Message string
	Data    map[string]any
}

// HandlerFunc implements one verb.
type HandlerFunc func(d *Dispatcher, args []string) Result

// Precondition gates whether a verb may run at all right now.
type Precondition func(d *Dispatcher) error

// verbEntry pairs a handler with its preconditions.
type verbEntry struct {
	handler HandlerFunc
	pre     []Precondition
}

// Dispatcher owns the verb table and the dependencies handlers need. It
// does not itself implement networking, mining, or storage — those are
// injected so handlers stay thin.
type Dispatcher struct {
	verbs map[string]verbEntry

	LoggedIn    bool
	CurrentUser string

	History HistoryRecorder
	Client  *client.Client
}

// HistoryRecorder is the minimal storage surface dispatch needs; it is
// satisfied by pkg/storage.Store.
type HistoryRecorder interface {
	AppendHistory(h *types.HistoryEntry) error
}

// New returns a Dispatcher with no verbs registered yet; call
// RegisterDefaultVerbs (or Register per verb) to populate it.
func New(c *client.Client) *Dispatcher {
	return &Dispatcher{verbs: make(map[string]verbEntry), History: c.Store, Client: c}
}

// Register adds a verb to the dispatch table.
func (d *Dispatcher) Register(verb string, handler HandlerFunc, pre ...Precondition) {
	d.verbs[verb] = verbEntry{handler: handler, pre: pre}
}

// Verbs returns the registered verb names, sorted, for help text.
func (d *Dispatcher) Verbs() []string {
	out := make([]string, 0, len(d.verbs))
	for v := range d.verbs {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Dispatch parses one REPL line and routes it to its registered handler,
// recording the outcome to history regardless of success.
func (d *Dispatcher) Dispatch(line string) Result {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return Result{Success: true}
	}
	verb, args := fields[0], fields[1:]

	entry, ok := d.verbs[verb]
	if !ok {
		res := Result{Success: false, Message: fmt.Sprintf("unknown command %q — try 'help'", verb)}
		d.record(verb, args, res)
		return res
	}

	for _, pre := range entry.pre {
		if err := pre(d); err != nil {
			res := Result{Success: false, Message: err.Error()}
			d.record(verb, args, res)
			return res
		}
	}

	res := entry.handler(d, args)
	d.record(verb, args, res)
	return res
}

func (d *Dispatcher) record(verb string, args []string, res Result) {
	if d.History == nil {
		return
	}
	_ = d.History.AppendHistory(&types.HistoryEntry{
		ID:        uuid.NewString(),
		Command:   verb,
		Args:      args,
		Success:   res.Success,
		Message:   res.Message,
		Timestamp: time.Now(),
	})
}

// RequireLogin is a Precondition for verbs that need an authenticated
// session.
func RequireLogin(d *Dispatcher) error {
	if !d.LoggedIn {
		return hpserr.New(hpserr.InvalidArgument, "you must 'login' first")
	}
	return nil
}

// RequireArgs is a Precondition-building helper: it is not itself a
// Precondition but handlers call it directly to validate positional args
// with a uniform error shape.
func RequireArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return hpserr.New(hpserr.InvalidArgument, "usage: %s", usage)
	}
	return nil
}
