// Package chat routes inbound messages to price lookups, bot commands or a
// conversational round-trip against the completion provider.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	ctxpkg "github.com/stupiduntilnot/investbot/internal/context"
	"github.com/stupiduntilnot/investbot/internal/control"
	"github.com/stupiduntilnot/investbot/internal/db"
	"github.com/stupiduntilnot/investbot/internal/journal"
	"github.com/stupiduntilnot/investbot/internal/model"
	"github.com/stupiduntilnot/investbot/internal/quote"
	"github.com/stupiduntilnot/investbot/internal/telemetry"
)

// Inbound is one message from a front end.
type Inbound struct {
	UserID ctxpkg.UserID
	Text   string
}

// Service handles inbound messages for every front end.
type Service struct {
	store     *ctxpkg.Store
	provider  model.Provider
	quotes    quote.Source
	assembler ctxpkg.Assembler

	policy    control.Policy
	breaker   *control.CircuitBreaker
	recorder  journal.Recorder
	rootID    int64
	tracer    trace.Tracer
	logger    *slog.Logger
	modelName string
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithPolicy(p control.Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithBreaker(b *control.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithRecorder sends journal events to rec as children of rootID.
func WithRecorder(rec journal.Recorder, rootID int64) Option {
	return func(s *Service) {
		s.recorder = rec
		s.rootID = rootID
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithModelName labels completion events.
func WithModelName(name string) Option {
	return func(s *Service) { s.modelName = name }
}

func NewService(store *ctxpkg.Store, provider model.Provider, quotes quote.Source, opts ...Option) *Service {
	s := &Service{
		store:     store,
		provider:  provider,
		quotes:    quotes,
		assembler: &ctxpkg.StandardAssembler{},
		policy:    control.DefaultPolicy(),
		breaker:   control.NewCircuitBreaker(5, 30*time.Second),
		recorder:  journal.Nop{},
		tracer:    noop.NewTracerProvider().Tracer("chat"),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat")
	return s
}

// Handle routes one inbound message and returns the reply to send. It never
// panics on provider or lookup failures; those surface as Result.Err.
// Whitespace is trimmed for routing only; a conversational message is stored
// as submitted.
func (s *Service) Handle(ctx context.Context, in Inbound) Result {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Result{Kind: KindIgnored}
	}

	ctx, span := s.tracer.Start(ctx, "chat.handle", trace.WithAttributes(
		attribute.String("user_id", string(in.UserID)),
	))
	defer span.End()

	cmd, isCommand := parseCommand(text)
	eventID := s.recorder.Record(ctx, s.rootID, db.EventMessageReceived, map[string]any{
		"user_id": string(in.UserID),
		"chars":   len([]rune(text)),
		"command": cmd.name,
	})

	var res Result
	if isCommand {
		res = s.handleCommand(ctx, eventID, in.UserID, cmd)
	} else {
		res = s.converse(ctx, eventID, in.UserID, in.Text)
	}
	res.EventID = eventID

	span.SetAttributes(attribute.String("result.kind", string(res.Kind)))
	if res.Failed() {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(res.Kind))
		s.logger.WarnContext(ctx, "message not served", "user_id", in.UserID, "kind", res.Kind, "err", res.Err)
	}
	return res
}

func (s *Service) handleCommand(ctx context.Context, eventID int64, user ctxpkg.UserID, cmd command) Result {
	switch cmd.name {
	case cmdPrice:
		return s.price(ctx, eventID, cmd)
	case cmdStart, cmdHelp:
		return Result{Text: HelpText, Kind: KindNone}
	case cmdReset:
		unlock := s.store.Lock(user)
		s.store.Reset(user)
		unlock()
		s.recorder.Record(ctx, eventID, db.EventHistoryReset, map[string]any{"user_id": string(user)})
		return Result{Text: ResetDone, Kind: KindNone}
	default:
		s.recorder.Record(ctx, eventID, db.EventCommandRejected, map[string]any{
			"command": cmd.name,
			"reason":  "unknown",
		})
		return Result{Text: unknownPrefix + "/" + cmd.name + "\n\n" + HelpText, Kind: KindUnknownCommand}
	}
}

func (s *Service) price(ctx context.Context, eventID int64, cmd command) Result {
	if len(cmd.args) != 1 {
		err := &MalformedCommandError{Command: cmd.name, Args: cmd.args, Usage: PriceUsage}
		s.recorder.Record(ctx, eventID, db.EventCommandRejected, map[string]any{
			"command": cmd.name,
			"reason":  "malformed",
			"args":    len(cmd.args),
		})
		return Result{Text: PriceUsage, Kind: KindMalformed, Err: err}
	}

	ctx, span := s.tracer.Start(ctx, "quote.lookup", trace.WithAttributes(
		attribute.String("ticker", cmd.args[0]),
	))
	defer span.End()

	started := s.now()
	price, err := s.quotes.LookupPrice(ctx, cmd.args[0])
	if err != nil {
		var lookupErr *quote.LookupError
		if !errors.As(err, &lookupErr) {
			lookupErr = &quote.LookupError{Ticker: strings.ToUpper(cmd.args[0]), Err: err}
			err = lookupErr
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		s.recorder.Record(ctx, eventID, db.EventQuoteFailed, map[string]any{
			"ticker":      lookupErr.Ticker,
			"error_class": control.ClassifyError(err),
			"error":       err.Error(),
		})
		text := fmt.Sprintf("Could not find a price for %s.", lookupErr.Ticker)
		if errors.Is(err, quote.ErrInvalidTicker) {
			text = fmt.Sprintf("%s is not a valid ticker symbol. %s", lookupErr.Ticker, PriceUsage)
		}
		return Result{Text: text, Kind: KindLookup, Err: err}
	}

	ticker, _ := quote.NormalizeTicker(cmd.args[0])
	s.recorder.Record(ctx, eventID, db.EventQuoteCompleted, map[string]any{
		"ticker":     ticker,
		"price":      price.String(),
		"latency_ms": s.now().Sub(started).Milliseconds(),
	})
	return Result{Text: quote.FormatPrice(ticker, price), Kind: KindNone}
}

// converse performs one round-trip for user. The user's round-trip lock is
// held from the user append until the reply is stored or abandoned.
func (s *Service) converse(ctx context.Context, eventID int64, user ctxpkg.UserID, text string) Result {
	unlock := s.store.Lock(user)
	defer unlock()

	turnID := telemetry.NewTurnID()
	messages := s.store.AppendUserMessage(user, text)
	s.recorder.Record(ctx, eventID, db.EventContextAssembled, map[string]any{
		"turn_id":       turnID,
		"message_count": len(messages),
		"seeded":        len(messages) == 2 && messages[0].Role == ctxpkg.RoleSystem,
	})

	resp, err := s.complete(ctx, eventID, turnID, messages)
	if err != nil {
		return Result{Text: Apology, Kind: KindCompletion, Err: err}
	}

	s.store.AppendAssistantReply(user, resp.Content)
	return Result{Text: resp.Content, Kind: KindNone}
}

// Complete runs a single-turn completion of text with no stored history.
func (s *Service) Complete(ctx context.Context, text string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "chat.complete")
	defer span.End()

	eventID := s.recorder.Record(ctx, s.rootID, db.EventMessageReceived, map[string]any{
		"chars":     len([]rune(text)),
		"stateless": true,
	})
	messages := s.assembler.Assemble(s.store.SystemPrompt(), nil, text)
	resp, err := s.complete(ctx, eventID, telemetry.NewTurnID(), messages)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return "", err
	}
	return resp.Content, nil
}

// complete calls the provider under the circuit breaker and the completion
// timeout. Failures are returned as *CompletionError.
func (s *Service) complete(ctx context.Context, eventID int64, turnID string, messages []ctxpkg.Message) (model.CompletionResponse, error) {
	prev := s.breaker.State()
	if !s.breaker.Allow(s.now()) {
		err := &CompletionError{Class: s.breaker.OpenedClass(), Err: ErrCircuitOpen}
		s.recorder.Record(ctx, eventID, db.EventCompletionFailed, map[string]any{
			"turn_id":     turnID,
			"error_class": err.Class,
			"error":       err.Error(),
		})
		return model.CompletionResponse{}, err
	}
	if prev == control.CircuitOpen {
		s.recorder.Record(ctx, eventID, db.EventCircuitHalfOpen, map[string]any{"turn_id": turnID})
	}

	s.recorder.Record(ctx, eventID, db.EventCompletionStarted, map[string]any{
		"turn_id":       turnID,
		"model_name":    s.modelName,
		"message_count": len(messages),
	})

	ctx, span := s.tracer.Start(ctx, "completion", trace.WithAttributes(
		attribute.String("model", s.modelName),
		attribute.Int("message_count", len(messages)),
	))
	defer span.End()

	cctx, cancel := control.WithCompletionTimeout(ctx, s.policy)
	started := s.now()
	resp, err := s.provider.ChatCompletion(cctx, messages)
	cancel()
	latency := s.now().Sub(started)

	if err != nil {
		err = control.CheckTimeout(s.policy, started, s.now(), err)
		class := control.ClassifyError(err)
		if class != control.ClassCanceled {
			s.recordFailure(ctx, eventID, class)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, class)
		s.recorder.Record(ctx, eventID, db.EventCompletionFailed, map[string]any{
			"turn_id":     turnID,
			"error_class": class,
			"error":       err.Error(),
			"latency_ms":  latency.Milliseconds(),
		})
		return model.CompletionResponse{}, &CompletionError{Class: class, Err: err}
	}

	recovered := s.breaker.State() != control.CircuitClosed
	s.breaker.RecordSuccess()
	if recovered {
		s.recorder.Record(ctx, eventID, db.EventCircuitClosed, map[string]any{"recovered": true})
	}

	if strings.TrimSpace(resp.Content) == "" {
		resp.Content = model.EmptyResponse
	}
	span.SetAttributes(
		attribute.Int("input_tokens", resp.InputTokens),
		attribute.Int("output_tokens", resp.OutputTokens),
	)
	s.recorder.Record(ctx, eventID, db.EventCompletionCompleted, map[string]any{
		"turn_id":       turnID,
		"latency_ms":    latency.Milliseconds(),
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
	return resp, nil
}

func (s *Service) recordFailure(ctx context.Context, eventID int64, class string) {
	prev := s.breaker.State()
	s.breaker.RecordFailure(class, s.now())
	if prev != control.CircuitOpen && s.breaker.State() == control.CircuitOpen {
		s.recorder.Record(ctx, eventID, db.EventCircuitOpened, map[string]any{
			"error_class":      class,
			"threshold":        s.breaker.Threshold,
			"cooldown_seconds": int(s.breaker.Cooldown.Seconds()),
		})
		s.logger.WarnContext(ctx, "completion circuit opened", "error_class", class)
	}
}
