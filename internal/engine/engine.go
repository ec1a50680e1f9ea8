// Package engine runs the tiered identification pipeline: a cheap streaming
// first pass, then progressively more expensive model tiers when confidence
// stays below target. It owns the event protocol ordering guarantees.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cellardex/cellarid/internal/cost"
	"github.com/cellardex/cellarid/internal/extract"
	"github.com/cellardex/cellarid/internal/llm"
	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/resilience"
	"github.com/cellardex/cellarid/internal/score"
	"github.com/cellardex/cellarid/internal/stream"
)

const (
	defaultConfidenceTarget = 85
	defaultDeepGate         = 92
	defaultFieldDelay       = 50 * time.Millisecond
	defaultRefiningMessage  = "Taking a closer look at this bottle..."
)

// Config tunes one Engine. Zero values take the documented defaults.
type Config struct {
	// Tiers is the ordered escalation ladder. The first tier streams; the
	// rest run as non-streaming review calls.
	Tiers []model.TierConfig

	// ConfidenceTarget is the score at or above which a candidate is final.
	ConfidenceTarget int

	// DeepGate is the score the second tier must miss before the third (and
	// any later) tier is worth its cost.
	DeepGate int

	// FieldDelay paces changed-field updates during refinement so a UI can
	// animate them. Cancellation interrupts the delay.
	FieldDelay time.Duration

	// RefiningMessage is the user-facing text on the refining event.
	RefiningMessage string
}

func (c *Config) applyDefaults() {
	if c.ConfidenceTarget <= 0 {
		c.ConfidenceTarget = defaultConfidenceTarget
	}
	if c.DeepGate <= 0 {
		c.DeepGate = defaultDeepGate
	}
	if c.FieldDelay <= 0 {
		c.FieldDelay = defaultFieldDelay
	}
	if c.RefiningMessage == "" {
		c.RefiningMessage = defaultRefiningMessage
	}
}

// Engine executes identification requests against the configured tier ladder.
type Engine struct {
	cfg      Config
	adapters *llm.Registry
	breakers *resilience.ProviderBreakers
	scorer   *score.Scorer
	calc     *cost.Calculator
	tracker  cost.Tracker
}

// New builds an Engine. tracker may be nil when no cost attribution is wanted.
func New(cfg Config, adapters *llm.Registry, breakers *resilience.ProviderBreakers, scorer *score.Scorer, calc *cost.Calculator, tracker cost.Tracker) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:      cfg,
		adapters: adapters,
		breakers: breakers,
		scorer:   scorer,
		calc:     calc,
		tracker:  tracker,
	}
}

// Identify runs one request end to end, emitting the event protocol on out.
// ctx is the per-request cancellation signal: cancellation observed before
// escalation starts still closes the stream with done; cancellation observed
// after escalation starts stops emission entirely.
func (e *Engine) Identify(ctx context.Context, req model.IdentificationRequest, out stream.Emitter) error {
	if err := req.Validate(); err != nil {
		e.emitFailure(ctx, out, err)
		return err
	}
	if len(e.cfg.Tiers) == 0 {
		err := eris.New("engine: no tiers configured")
		e.emitFailure(ctx, out, err)
		return err
	}

	fast := e.cfg.Tiers[0]
	cand, conf, rec, err := e.runFastTier(ctx, req, fast, out)
	records := []model.EscalationRecord{rec}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		zap.L().Warn("fast tier failed",
			zap.String("request_id", req.ID),
			zap.String("model", fast.Model),
			zap.Error(err))
		e.emitFailure(ctx, out, err)
		e.notify(ctx, records)
		return err
	}

	mayRefine := conf < e.cfg.ConfidenceTarget && len(e.cfg.Tiers) > 1
	if err := out.Emit(ctx, stream.Result(cand, conf, mayRefine)); err != nil {
		return err
	}

	// After the result event the caller already has a usable answer, so any
	// trouble from here on degrades to refined{improved:false} rather than an
	// error event.
	if !mayRefine {
		e.notify(ctx, records)
		return e.emitDone(ctx, out)
	}

	if ctx.Err() != nil {
		// Cancelled before escalation started: close the stream cleanly for
		// any consumer still draining, and never spend on higher tiers.
		dctx := context.WithoutCancel(ctx)
		e.notify(dctx, records)
		return out.Emit(dctx, stream.Done())
	}

	if err := out.Emit(ctx, stream.Refining(e.cfg.RefiningMessage, conf)); err != nil {
		return err
	}

	best, bestConf := cand, conf
	for i, tier := range e.cfg.Tiers[1:] {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i > 0 && bestConf >= e.cfg.DeepGate {
			break
		}

		next, nextConf, nrec, err := e.runEscalationTier(ctx, req, best, tier)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Warn("escalation tier failed",
				zap.String("request_id", req.ID),
				zap.String("tier", string(tier.Name)),
				zap.String("model", tier.Model),
				zap.Error(err))
			records = append(records, nrec)
			continue
		}
		// Strictly greater: ties keep the cheaper tier's answer.
		if nextConf > bestConf {
			nrec.Improved = true
			best, bestConf = next, nextConf
		}
		records = append(records, nrec)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	improved := bestConf > conf
	if improved {
		for _, field := range model.ChangedFields(cand, best) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.cfg.FieldDelay):
			}
			value, _ := best.Field(field)
			if err := out.Emit(ctx, stream.Field(field, value)); err != nil {
				return err
			}
		}
		if err := out.Emit(ctx, stream.Refined(true, best, bestConf, records)); err != nil {
			return err
		}
	} else {
		if err := out.Emit(ctx, stream.Refined(false, cand, conf, records)); err != nil {
			return err
		}
	}

	e.notify(ctx, records)
	return e.emitDone(ctx, out)
}

// runFastTier streams the first tier, forwarding field events as they become
// complete. A response that never forms parseable JSON is not a provider
// failure: it degrades to a zero-confidence candidate built from whatever
// fields did complete.
func (e *Engine) runFastTier(ctx context.Context, req model.IdentificationRequest, tier model.TierConfig, out stream.Emitter) (model.Candidate, int, model.EscalationRecord, error) {
	rec := model.EscalationRecord{RequestID: req.ID, Tier: tier.Name, Model: tier.Model}

	adapter := e.adapters.Get(tier.Provider)
	if adapter == nil {
		err := eris.Errorf("engine: no adapter registered for provider %q", tier.Provider)
		rec.Err = err.Error()
		return model.Candidate{}, 0, rec, err
	}

	prompt := buildTierPrompt(req, tier)
	cb := e.breakers.Get(tier.Provider)
	start := time.Now()

	var (
		cand        model.Candidate
		conf        int
		parseFailed bool
	)
	err := cb.Execute(ctx, func(ctx context.Context) error {
		tctx := ctx
		if tier.Timeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(ctx, tier.Timeout)
			defer cancel()
		}

		ts, err := adapter.Stream(tctx, prompt, tier)
		if err != nil {
			return err
		}
		defer ts.Close()

		ex := extract.New(model.CandidateFields)
		partial := make(map[string]any)
		for ts.Next() {
			for _, fe := range ex.Feed(ts.Text()) {
				partial[fe.Field] = fe.Value
				if err := out.Emit(ctx, stream.Field(fe.Field, fe.Value)); err != nil {
					return err
				}
			}
		}
		if err := ts.Err(); err != nil {
			return err
		}
		rec.Usage = ts.Usage()

		obj, ok := ex.Final()
		if !ok {
			obj = partial
			parseFailed = true
		}
		cand = model.FromParsed(obj)
		if parseFailed {
			cand.Confidence = 0
			conf = 0
			rec.Err = "parse failure: response never formed a complete JSON object"
			return nil
		}
		conf = e.scorer.Score(cand)
		return nil
	})

	rec.DurationMS = time.Since(start).Milliseconds()
	rec.CostUSD = e.calc.Claude(tier.Model, rec.Usage.InputTokens, rec.Usage.OutputTokens, 0, 0)
	rec.Confidence = conf
	if err != nil {
		rec.Err = err.Error()
		return model.Candidate{}, 0, rec, err
	}
	c := cand
	rec.Candidate = &c
	return cand, conf, rec, nil
}

// runEscalationTier runs one non-streaming review call primed with the best
// candidate so far.
func (e *Engine) runEscalationTier(ctx context.Context, req model.IdentificationRequest, prior model.Candidate, tier model.TierConfig) (model.Candidate, int, model.EscalationRecord, error) {
	rec := model.EscalationRecord{RequestID: req.ID, Tier: tier.Name, Model: tier.Model}

	adapter := e.adapters.Get(tier.Provider)
	if adapter == nil {
		err := eris.Errorf("engine: no adapter registered for provider %q", tier.Provider)
		rec.Err = err.Error()
		return model.Candidate{}, 0, rec, err
	}

	prompt := buildEscalationPrompt(req, prior, tier)
	cb := e.breakers.Get(tier.Provider)
	start := time.Now()

	comp, err := resilience.ExecuteVal(ctx, cb, func(ctx context.Context) (*llm.Completion, error) {
		tctx := ctx
		if tier.Timeout > 0 {
			var cancel context.CancelFunc
			tctx, cancel = context.WithTimeout(ctx, tier.Timeout)
			defer cancel()
		}
		return adapter.Complete(tctx, prompt, tier)
	})
	rec.DurationMS = time.Since(start).Milliseconds()
	if err != nil {
		rec.Err = err.Error()
		if resilience.IsParseFailure(err) {
			// Empty or garbage response: zero-confidence candidate, never a
			// tier error and never a circuit failure.
			return model.Candidate{}, 0, rec, nil
		}
		return model.Candidate{}, 0, rec, err
	}

	rec.Usage = comp.Usage
	rec.CostUSD = e.calc.Claude(tier.Model, comp.Usage.InputTokens, comp.Usage.OutputTokens, 0, 0)

	var obj map[string]any
	if uerr := json.Unmarshal([]byte(extract.CleanJSON(comp.Text)), &obj); uerr != nil {
		rec.Err = "parse failure: " + uerr.Error()
		return model.Candidate{}, 0, rec, nil
	}

	cand := model.FromParsed(obj)
	conf := e.scorer.Score(cand)
	rec.Confidence = conf
	c := cand
	rec.Candidate = &c
	return cand, conf, rec, nil
}

// emitFailure sends the single allowed error event followed by done. Only
// valid before a result has been emitted.
func (e *Engine) emitFailure(ctx context.Context, out stream.Emitter, err error) {
	kind, retryable := classifyFailure(err)
	if emitErr := out.Emit(ctx, stream.Error(kind, err.Error(), retryable)); emitErr != nil {
		return
	}
	_ = out.Emit(ctx, stream.Done())
}

func (e *Engine) emitDone(ctx context.Context, out stream.Emitter) error {
	return out.Emit(ctx, stream.Done())
}

// notify hands the audit trail to the cost tracker without blocking the
// request path. A cancelled request still gets attributed.
func (e *Engine) notify(ctx context.Context, records []model.EscalationRecord) {
	if e.tracker == nil {
		return
	}
	dctx := context.WithoutCancel(ctx)
	go func() {
		for _, rec := range records {
			e.tracker.Record(dctx, rec)
		}
	}()
}

func classifyFailure(err error) (stream.ErrorKind, bool) {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return stream.ErrorKindUnavailable, true
	case resilience.IsRejected(err):
		return stream.ErrorKindRejected, false
	case resilience.IsTransient(err):
		return stream.ErrorKindTransport, true
	default:
		var te *resilience.TransportError
		if errors.As(err, &te) {
			return stream.ErrorKindTransport, true
		}
		return stream.ErrorKindInternal, false
	}
}
