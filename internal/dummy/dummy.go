package dummy

import (
	"context"
	"encoding/base64"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	cmdpkg "github.com/stupiduntilnot/investbot/internal/commander"
	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	modelpkg "github.com/stupiduntilnot/investbot/internal/model"
	"github.com/stupiduntilnot/investbot/internal/quote"
)

type action struct {
	kind string
	arg  string
}

var actionKinds = []string{"err", "sleep", "msg", "msgb64", "from"}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		kind, arg, found := strings.Cut(token, ":")
		if !found || !slices.Contains(actionKinds, kind) {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
		actions = append(actions, action{kind: kind, arg: arg})
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

// next returns the next action, repeating the last one once the script is
// exhausted.
func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepCtx(ctx context.Context, arg string) error {
	ms, _ := strconv.Atoi(arg)
	if ms <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sent is a message delivered through Commander.SendMessage.
type Sent struct {
	ChatID int64
	Text   string
}

// Commander replays a poll script as updates and a send script as delivery
// outcomes.
//
// Poll tokens: ok (no update), err:<class>, sleep:<ms>, msg:<text>,
// msgb64:<base64>, from:<user id> (sender of the following messages).
type Commander struct {
	mu       sync.Mutex
	poll     []action
	send     *scriptRunner
	updateID int64
	sent     []Sent
}

func NewCommander(pollScript, sendScript string) (*Commander, error) {
	poll, err := parseScript(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Commander{poll: poll, send: send, updateID: 1}, nil
}

// Run delivers the poll script to handler in order and returns once it is
// exhausted.
func (c *Commander) Run(ctx context.Context, handler cmdpkg.Handler) error {
	var from int64 = 1
	for _, a := range c.poll {
		if err := ctx.Err(); err != nil {
			return err
		}
		var text string
		switch a.kind {
		case "ok":
			continue
		case "err":
			return fmt.Errorf("dummy commander error class=%s", emptyAs(a.arg, "command_source_api"))
		case "sleep":
			if err := sleepCtx(ctx, a.arg); err != nil {
				return err
			}
			continue
		case "from":
			id, err := strconv.ParseInt(a.arg, 10, 64)
			if err != nil {
				return fmt.Errorf("dummy commander invalid sender %q: %w", a.arg, err)
			}
			from = id
			continue
		case "msg":
			text = a.arg
		case "msgb64":
			raw, err := base64.StdEncoding.DecodeString(a.arg)
			if err != nil {
				return fmt.Errorf("dummy commander msgb64 decode failed: %w", err)
			}
			text = string(raw)
		}

		c.mu.Lock()
		c.updateID++
		id := c.updateID
		c.mu.Unlock()

		handler(ctx, cmdpkg.Update{
			UpdateID: id,
			Message: &cmdpkg.Message{
				Chat: cmdpkg.Chat{ID: from},
				From: &cmdpkg.User{ID: from},
				Text: &text,
				Date: time.Now().Unix(),
			},
		})
	}
	return nil
}

func (c *Commander) SendMessage(ctx context.Context, chatID int64, text string) error {
	c.mu.Lock()
	a := c.send.next()
	c.mu.Unlock()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy commander send error class=%s", emptyAs(a.arg, "command_source_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.sent = append(c.sent, Sent{ChatID: chatID, Text: text})
	c.mu.Unlock()
	return nil
}

// Sent returns the messages delivered so far.
func (c *Commander) Sent() []Sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

type Provider struct {
	mu     sync.Mutex
	model  string
	script *scriptRunner
	calls  [][]ctxpkg.Message
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

// Calls returns a copy of the message lists the provider was asked to
// complete.
func (p *Provider) Calls() [][]ctxpkg.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]ctxpkg.Message, len(p.calls))
	for i, c := range p.calls {
		out[i] = slices.Clone(c)
	}
	return out
}

func (p *Provider) ChatCompletion(ctx context.Context, messages []ctxpkg.Message) (modelpkg.CompletionResponse, error) {
	p.mu.Lock()
	a := p.script.next()
	p.calls = append(p.calls, slices.Clone(messages))
	p.mu.Unlock()

	ok := func(content string) (modelpkg.CompletionResponse, error) {
		return modelpkg.CompletionResponse{
			Content:      content,
			InputTokens:  len(messages),
			OutputTokens: 1,
		}, nil
	}

	switch a.kind {
	case "ok":
		return ok(emptyAs(a.arg, "dummy-ok"))
	case "err":
		return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		if err := sleepCtx(ctx, a.arg); err != nil {
			return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider interrupted: %w", err)
		}
		return ok("dummy-after-sleep")
	case "msg":
		return ok(a.arg)
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return ok(string(raw))
	default:
		return ok("dummy-ok")
	}
}

// Quotes is a fixed price table keyed by upper-case ticker.
type Quotes map[string]decimal.Decimal

// DefaultQuotes is the table served when the quote provider is "dummy".
func DefaultQuotes() Quotes {
	return Quotes{
		"AAPL": decimal.RequireFromString("189.12"),
		"MSFT": decimal.RequireFromString("411.22"),
		"SPY":  decimal.RequireFromString("512.30"),
	}
}

func (q Quotes) LookupPrice(ctx context.Context, ticker string) (decimal.Decimal, error) {
	symbol, err := quote.NormalizeTicker(ticker)
	if err != nil {
		return decimal.Decimal{}, err
	}
	price, ok := q[symbol]
	if !ok {
		return decimal.Decimal{}, &quote.LookupError{Ticker: symbol, Err: quote.ErrUnknownTicker}
	}
	return price, nil
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
