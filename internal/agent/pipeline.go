// internal/agent/pipeline.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/dom"
	"github.com/xkilldash9x/webpilot/internal/observability"
	"github.com/xkilldash9x/webpilot/internal/prompts"
)

// State is a position in the step state machine.
type State string

const (
	StateIdle        State = "idle"
	StateObserving   State = "observing"
	StateEvaluating  State = "evaluating"
	StateFiltering   State = "filtering"
	StateDeciding    State = "deciding"
	StateExecuting   State = "executing"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// fallbackEvaluation is reported when the evaluation stage cannot produce one.
const fallbackEvaluation = "Unknown"

// RunResult is the outcome of one run. State is always StateDone or StateFailed.
type RunResult struct {
	RunID           string
	Task            string
	State           State
	Steps           int
	FinalResult     string
	BudgetExhausted bool
	History         []schemas.StepRecord
	Err             error
}

// Succeeded reports whether the run ended through a terminal action.
func (r RunResult) Succeeded() bool {
	return r.State == StateDone && !r.BudgetExhausted && r.Err == nil
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistoryStore persists every step record to store.
func WithHistoryStore(store schemas.HistoryStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithClock replaces the wall clock used for prompt time stamps and step timing.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.newRunID = func() string { return id } }
}

// Pipeline drives one browser session through observe, decide and execute steps
// until the task is done or the run fails. A Pipeline runs one task at a time;
// use one Pipeline per concurrent run.
type Pipeline struct {
	driver   schemas.Driver
	llm      schemas.LLMClient
	catalog  *Catalog
	settings Settings
	logger   *zap.Logger
	store    schemas.HistoryStore
	now      func() time.Time
	newRunID func() string
}

// New creates a pipeline. The catalog is shared read-only and may be reused
// across pipelines.
func New(driver schemas.Driver, llm schemas.LLMClient, catalog *Catalog, settings Settings, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if driver == nil || llm == nil {
		return nil, errors.New("pipeline requires a driver and an LLM client")
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent settings: %w", err)
	}
	if logger == nil {
		logger = observability.GetLogger()
	}

	p := &Pipeline{
		driver:   driver,
		llm:      llm,
		catalog:  catalog,
		settings: settings,
		logger:   logger.Named("pipeline"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run holds the mutable state of a single run. It never outlives Run.
type run struct {
	id     string
	task   string
	logger *zap.Logger
	state  State

	step     int
	failures int

	memory   string
	nextGoal string
	// prevState and pending are produced by one step and consumed by the next.
	prevState *schemas.BrowserState
	pending   []schemas.ActionResult

	history []schemas.StepRecord
}

// enter moves the run to next after checking for cancellation.
func (r *run) enter(ctx context.Context, next State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.logger.Debug("State transition", zap.String("from", string(r.state)), zap.String("to", string(next)))
	r.state = next
	return nil
}

// stepOutcome summarizes a step for the run loop.
type stepOutcome struct {
	done   bool
	final  string
	failed bool  // The step failed; counts towards the consecutive failure ceiling.
	fatal  error // The run must end.
}

// Run executes task until a terminal action, the step budget, an unrecoverable
// driver error, the consecutive failure ceiling, or cancellation of ctx.
func (p *Pipeline) Run(ctx context.Context, task string) RunResult {
	r := &run{id: p.newRunID(), task: task, state: StateIdle}
	r.logger = observability.ForRun(p.logger, r.id)
	r.logger.Info("Starting run.",
		zap.String("task", task),
		zap.Int("max_steps", p.settings.MaxSteps),
		zap.Stringer("plan", p.settings.Plan))

	for {
		if err := ctx.Err(); err != nil {
			return p.finish(r, StateFailed, "", false, fmt.Errorf("run cancelled: %w", err))
		}
		if r.step >= p.settings.MaxSteps {
			r.logger.Warn("Step budget exhausted before the task was completed.", zap.Int("steps", r.step))
			return p.finish(r, StateDone, "", true, nil)
		}

		out := p.runStep(ctx, r)

		switch {
		case out.fatal != nil:
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(out.fatal, ctxErr) {
				return p.finish(r, StateFailed, "", false, fmt.Errorf("run cancelled: %w", out.fatal))
			}
			return p.finish(r, StateFailed, "", false, out.fatal)
		case out.done:
			return p.finish(r, StateDone, out.final, false, nil)
		case out.failed:
			r.failures++
			if r.failures >= p.settings.MaxConsecutiveFailures {
				return p.finish(r, StateFailed, "", false,
					fmt.Errorf("stopping after %d consecutive failed steps", r.failures))
			}
		default:
			r.failures = 0
		}
	}
}

func (p *Pipeline) finish(r *run, state State, final string, exhausted bool, err error) RunResult {
	r.state = state
	fields := []zap.Field{zap.String("state", string(state)), zap.Int("steps", r.step)}
	if err != nil {
		r.logger.Error("Run failed.", append(fields, zap.Error(err))...)
	} else {
		r.logger.Info("Run finished.", append(fields, zap.Bool("budget_exhausted", exhausted))...)
	}
	return RunResult{
		RunID:           r.id,
		Task:            r.task,
		State:           state,
		Steps:           r.step,
		FinalResult:     final,
		BudgetExhausted: exhausted,
		History:         r.history,
		Err:             err,
	}
}

// runStep performs one full pass through the state machine and always records
// the step, even when it fails part way.
func (p *Pipeline) runStep(ctx context.Context, r *run) stepOutcome {
	started := p.now()
	rec := schemas.StepRecord{RunID: r.id, Step: r.step, StartedAt: started}

	// Results of the previous step are consumed here, exactly once.
	pending := r.pending
	r.pending = nil

	out, state, decision, results := p.stepBody(ctx, r, pending, &rec)

	// -- Aggregating --
	r.state = StateAggregating
	if state != nil {
		rec.URL = state.URL
		r.prevState = state
	}
	if decision != nil {
		rec.Memory = decision.CurrentState.Memory
		rec.NextGoal = decision.CurrentState.NextGoal
		if rec.Evaluation == "" {
			rec.Evaluation = decision.CurrentState.EvaluationPreviousGoal
		}
		r.memory = decision.CurrentState.Memory
		r.nextGoal = decision.CurrentState.NextGoal
	}
	rec.Results = results
	rec.Duration = p.now().Sub(started)
	r.pending = results
	r.history = append(r.history, rec)
	r.step++

	if p.store != nil {
		// History is kept even when the run was cancelled mid-step.
		if err := p.store.SaveStep(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Warn("Failed to persist step record.", zap.Int("step", rec.Step), zap.Error(err))
		}
	}

	r.logger.Info("Step complete.",
		zap.Int("step", rec.Step+1),
		zap.String("url", rec.URL),
		zap.String("evaluation", rec.Evaluation),
		zap.Int("actions", len(rec.Actions)),
		zap.Bool("failed", out.failed),
		zap.Duration("duration", rec.Duration))
	return out
}

// stepBody runs Observing through Executing. It returns the observed state (nil
// if observation failed), the decision (nil if none was made) and the results
// that feed the next observation.
func (p *Pipeline) stepBody(ctx context.Context, r *run, pending []schemas.ActionResult, rec *schemas.StepRecord) (stepOutcome, *schemas.BrowserState, *schemas.AgentDecision, []schemas.ActionResult) {
	// -- Observing --
	if err := r.enter(ctx, StateObserving); err != nil {
		rec.Error = err.Error()
		return stepOutcome{fatal: err}, nil, nil, pending
	}
	state, err := p.observe(ctx)
	if err != nil {
		rec.Error = err.Error()
		if fatal := classifyDriverError(err); fatal != nil {
			return stepOutcome{fatal: fatal}, nil, nil, pending
		}
		if ctx.Err() != nil {
			return stepOutcome{fatal: ctx.Err()}, nil, nil, pending
		}
		r.logger.Warn("Observation failed; skipping to aggregation.", zap.Error(err))
		// The pending results were never shown to the model, so they stay pending.
		return stepOutcome{failed: true}, nil, nil, append(pending, schemas.ActionResult{Error: err.Error()})
	}

	opts := p.settings.observationOptions()
	eval := schemas.CurrentState{EvaluationPreviousGoal: fallbackEvaluation, Memory: r.memory, NextGoal: r.nextGoal}
	decideState := state

	// -- Evaluating --
	if p.settings.Plan.Has(StageEvaluate) {
		if err := r.enter(ctx, StateEvaluating); err != nil {
			rec.Error = err.Error()
			return stepOutcome{fatal: err}, state, nil, pending
		}
		eval, err = p.evaluate(ctx, r, state, pending, opts)
		if err != nil {
			rec.Error = err.Error()
			return stepOutcome{fatal: err}, state, nil, pending
		}
		rec.Evaluation = eval.EvaluationPreviousGoal
	}

	// -- Filtering --
	if p.settings.Plan.Has(StageFilter) {
		if err := r.enter(ctx, StateFiltering); err != nil {
			rec.Error = err.Error()
			return stepOutcome{fatal: err}, state, nil, pending
		}
		decideState, err = p.filter(ctx, r, orDefault(eval.NextGoal, r.nextGoal), state, opts)
		if err != nil {
			rec.Error = err.Error()
			return stepOutcome{fatal: err}, state, nil, pending
		}
	}

	// -- Deciding --
	if err := r.enter(ctx, StateDeciding); err != nil {
		rec.Error = err.Error()
		return stepOutcome{fatal: err}, state, nil, pending
	}
	decision, err := p.decide(ctx, p.decisionMessages(r, state, decideState, eval, pending, opts))
	if err != nil {
		rec.Error = err.Error()
		if ctx.Err() != nil {
			return stepOutcome{fatal: ctx.Err()}, state, nil, pending
		}
		r.logger.Warn("No usable decision this step.", zap.String("code", string(ErrorCodeOf(err))), zap.Error(err))
		return stepOutcome{failed: true}, state, nil, []schemas.ActionResult{{Error: err.Error()}}
	}

	// -- Executing --
	if err := r.enter(ctx, StateExecuting); err != nil {
		rec.Error = err.Error()
		return stepOutcome{fatal: err}, state, &decision, pending
	}
	actions := decision.Actions
	if len(actions) > p.settings.MaxActionsPerStep {
		r.logger.Warn("Model requested more actions than allowed; extra actions dropped.",
			zap.Int("requested", len(actions)), zap.Int("max", p.settings.MaxActionsPerStep))
		actions = actions[:p.settings.MaxActionsPerStep]
	}
	rec.Actions = actions

	results, out := p.execute(ctx, r, decideState, actions)
	if out.fatal != nil {
		rec.Error = out.fatal.Error()
	}
	return out, state, &decision, results
}

// observe captures the page, retrying transient failures with backoff.
func (p *Pipeline) observe(ctx context.Context) (*schemas.BrowserState, error) {
	var state *schemas.BrowserState
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.settings.ObservationTimeout)
		defer cancel()

		st, err := p.driver.Capture(callCtx, schemas.CaptureOptions{Screenshot: p.settings.UseVision})
		if err != nil {
			if classifyDriverError(err) != nil || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if st == nil {
			return errors.New("driver returned no browser state")
		}
		if err := st.Elements.Validate(); err != nil {
			return backoff.Permanent(fmt.Errorf("driver returned an invalid element snapshot: %w", err))
		}
		state = st
		return nil
	}

	if err := backoff.Retry(op, p.retryPolicy(ctx, p.settings.ObservationRetries)); err != nil {
		if classifyDriverError(err) != nil {
			return nil, err
		}
		return nil, &ObservationError{Code: ErrCodeObservationFailed, Err: err}
	}
	if !p.settings.UseVision && state.Screenshot != "" {
		stripped := *state
		stripped.Screenshot = ""
		state = &stripped
	}
	return state, nil
}

// evaluate asks the fast tier whether the previous goal was met. Parse and model
// failures fall back to an Unknown evaluation; only cancellation is returned.
func (p *Pipeline) evaluate(ctx context.Context, r *run, state *schemas.BrowserState, pending []schemas.ActionResult, opts prompts.ObservationOptions) (schemas.CurrentState, error) {
	fallback := schemas.CurrentState{EvaluationPreviousGoal: fallbackEvaluation, Memory: r.memory, NextGoal: r.nextGoal}
	if r.prevState == nil && len(pending) == 0 {
		// Nothing has happened yet, so there is nothing to evaluate.
		return fallback, nil
	}

	msgs := []schemas.Message{prompts.BuildEvaluationPrompt(r.prevState, r.nextGoal, state, pending, opts)}
	for attempt := 0; attempt < 2; attempt++ {
		raw, err := p.generate(ctx, msgs, schemas.TierFast, true)
		if err != nil {
			if ctx.Err() != nil {
				return fallback, ctx.Err()
			}
			r.logger.Warn("Evaluation call failed; continuing with an unknown evaluation.", zap.Error(err))
			return fallback, nil
		}
		eval, err := ParseEvaluation(raw)
		if err == nil {
			return eval, nil
		}
		r.logger.Debug("Evaluation reply unusable.", zap.Int("attempt", attempt+1), zap.Error(err))
		msgs = appendMessages(msgs,
			schemas.Message{Role: schemas.RoleAssistant, Content: raw},
			prompts.StricterEvaluationNote())
	}
	return fallback, nil
}

// filter narrows the snapshot to the elements the fast tier considers relevant
// for goal. Any failure, or a reply resolving to no known element, keeps the
// unfiltered state.
func (p *Pipeline) filter(ctx context.Context, r *run, goal string, state *schemas.BrowserState, opts prompts.ObservationOptions) (*schemas.BrowserState, error) {
	if state.Elements.InteractiveCount() == 0 {
		return state, nil
	}
	raw, err := p.generate(ctx, []schemas.Message{prompts.BuildFilterPrompt(goal, state, opts)}, schemas.TierFast, false)
	if err != nil {
		if ctx.Err() != nil {
			return state, ctx.Err()
		}
		r.logger.Warn("Filter call failed; using the full element list.", zap.Error(err))
		return state, nil
	}
	parsed, err := dom.ParseRendered(raw)
	if err != nil {
		r.logger.Debug("Filter reply unusable; using the full element list.", zap.Error(err))
		return state, nil
	}
	snapshot, resolved := dom.Resolve(parsed, state.Elements)
	if resolved == 0 {
		r.logger.Debug("Filter reply matched no known element; using the full element list.")
		return state, nil
	}
	r.logger.Debug("Filtered element list.",
		zap.Int("kept", resolved), zap.Int("total", state.Elements.InteractiveCount()))

	filtered := *state
	filtered.Elements = snapshot
	return &filtered, nil
}

// decisionMessages lays out the decision request. Single stage:
// [system, task, memory?, observation]. Staged: [system, task, observation, action].
func (p *Pipeline) decisionMessages(r *run, state, decideState *schemas.BrowserState, eval schemas.CurrentState, pending []schemas.ActionResult, opts prompts.ObservationOptions) []schemas.Message {
	stepInfo := &schemas.StepInfo{StepNumber: r.step, MaxSteps: p.settings.MaxSteps}
	msgs := []schemas.Message{
		prompts.BuildSystemPrompt(p.catalog.Describe(), p.now(), p.settings.MaxActionsPerStep),
		prompts.BuildTaskPrompt(r.task),
	}

	if !p.settings.Plan.Staged() {
		if r.memory != "" {
			msgs = append(msgs, prompts.BuildMemoryPrompt(r.memory))
		}
		var prev *schemas.BrowserState
		if p.settings.IncludePreviousState {
			prev = r.prevState
		}
		return append(msgs, prompts.BuildObservationPrompt(state, prev, r.nextGoal, pending, stepInfo, opts))
	}

	memory := orDefault(eval.Memory, r.memory)
	goal := orDefault(eval.NextGoal, r.nextGoal)
	return append(msgs,
		prompts.BuildObservationPrompt(decideState, nil, "", pending, stepInfo, opts),
		prompts.BuildActionPrompt(eval, dom.Render(decideState.Elements, opts.IncludeAttributes), goal, memory),
	)
}

// decide asks the powerful tier for a decision, re-issuing the request with a
// correction note when the reply does not parse.
func (p *Pipeline) decide(ctx context.Context, msgs []schemas.Message) (schemas.AgentDecision, error) {
	for attempt := 0; ; attempt++ {
		raw, err := p.generate(ctx, msgs, schemas.TierPowerful, true)
		if err != nil {
			return schemas.AgentDecision{}, err
		}
		decision, err := ParseDecision(raw, p.catalog)
		if err == nil {
			return decision, nil
		}
		if attempt >= p.settings.MaxParseRetries {
			return schemas.AgentDecision{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return schemas.AgentDecision{}, ctxErr
		}

		var parseErr *DecisionParseError
		cause := err
		if errors.As(err, &parseErr) {
			cause = parseErr.Err
		}
		msgs = appendMessages(msgs,
			schemas.Message{Role: schemas.RoleAssistant, Content: raw},
			prompts.BuildCorrectionPrompt(cause))
	}
}

// generate performs one model call with a per-call timeout, retried with
// backoff. Failures come back as *ModelCommunicationError, cancellation as the
// context error.
func (p *Pipeline) generate(ctx context.Context, msgs []schemas.Message, tier schemas.ModelTier, jsonReply bool) (string, error) {
	req := schemas.GenerationRequest{
		Messages: msgs,
		Tier:     tier,
		Options:  schemas.GenerationOptions{Temperature: p.settings.Temperature, ForceJSONFormat: jsonReply},
	}

	var reply string
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.settings.ModelTimeout)
		defer cancel()

		text, err := p.llm.Generate(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if errors.Is(err, schemas.ErrInvalidRequest) {
				return backoff.Permanent(err)
			}
			return err
		}
		reply = text
		return nil
	}

	if err := backoff.Retry(op, p.retryPolicy(ctx, p.settings.ModelRetries)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		code := ErrCodeModelUnavailable
		switch {
		case errors.Is(err, schemas.ErrInvalidRequest):
			code = ErrCodeModelRequestInvalid
		case errors.Is(err, context.DeadlineExceeded):
			code = ErrCodeModelTimeout
		}
		return "", &ModelCommunicationError{Code: code, Tier: tier, Err: err}
	}
	return reply, nil
}

// execute runs actions in order. It stops early on a terminal action, on a page
// change with actions remaining, or on a fatal driver error.
func (p *Pipeline) execute(ctx context.Context, r *run, state *schemas.BrowserState, actions []schemas.ActionCall) ([]schemas.ActionResult, stepOutcome) {
	results := make([]schemas.ActionResult, 0, len(actions))
	total := len(actions)

	for i, call := range actions {
		if err := ctx.Err(); err != nil {
			return results, stepOutcome{fatal: err}
		}

		if spec, _ := p.catalog.Lookup(call.Name); hasIndexParam(spec) {
			if idx, ok := call.Index(); ok {
				if _, found := state.Elements.Lookup(idx); !found {
					missing := &ActionExecutionError{
						Code:   ErrCodeElementNotFound,
						Action: call.Name,
						Err:    fmt.Errorf("element with index %d does not exist - retry or use alternative actions", idx),
					}
					r.logger.Debug("Skipping action on a missing element.", zap.Error(missing))
					results = append(results, schemas.ActionResult{Error: missing.Error()})
					continue
				}
			}
		}

		if p.catalog.IsTerminal(call.Name) {
			text := call.StringParam("text")
			results = append(results, schemas.ActionResult{ExtractedContent: text, IsDone: true})
			return results, stepOutcome{done: true, final: text}
		}

		res, err := p.executeAction(ctx, call)
		if err != nil {
			if fatal := classifyDriverError(err); fatal != nil {
				results = append(results, schemas.ActionResult{Error: err.Error()})
				return results, stepOutcome{fatal: fatal}
			}
			if ctx.Err() != nil {
				return results, stepOutcome{fatal: ctx.Err()}
			}
			r.logger.Debug("Action failed.", zap.String("action", call.Name), zap.Error(err))
			results = append(results, schemas.ActionResult{Error: err.Error()})
			continue
		}

		results = append(results, res)
		if res.IsDone {
			return results, stepOutcome{done: true, final: res.ExtractedContent}
		}
		if res.PageChanged && i < total-1 {
			remaining := total - 1 - i
			r.logger.Info("Page changed; discarding the rest of the action sequence.",
				zap.Int("after_action", i+1), zap.Int("discarded", remaining))
			results = append(results, schemas.ActionResult{
				ExtractedContent: fmt.Sprintf("Something new appeared after action %d/%d: the remaining %d action(s) were not executed", i+1, total, remaining),
			})
			break
		}
	}
	return results, stepOutcome{}
}

// executeAction runs one driver call under the action timeout. Only timeouts are
// retried; other driver errors are reported to the model as they are.
func (p *Pipeline) executeAction(ctx context.Context, call schemas.ActionCall) (schemas.ActionResult, error) {
	var result schemas.ActionResult
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.settings.ActionTimeout)
		defer cancel()

		res, err := p.driver.Execute(callCtx, call)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(op, p.retryPolicy(ctx, p.settings.ActionRetries))
	if err == nil {
		return result, nil
	}
	if classifyDriverError(err) != nil || ctx.Err() != nil {
		return schemas.ActionResult{}, err
	}

	code := ErrCodeExecutionFailure
	var unknown *schemas.UnknownActionError
	switch {
	case errors.As(err, &unknown):
		code = ErrCodeUnknownAction
	case errors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeoutError
	}
	return schemas.ActionResult{}, &ActionExecutionError{Code: code, Action: call.Name, Err: err}
}

// retryPolicy builds the backoff for one operation: exponential, at most
// retries extra attempts, bound to ctx.
func (p *Pipeline) retryPolicy(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.settings.RetryBaseDelay
	b.MaxInterval = 10 * p.settings.RetryBaseDelay
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func hasIndexParam(spec ActionSpec) bool {
	for _, param := range spec.Params {
		if param.Name == "index" {
			return true
		}
	}
	return false
}

// appendMessages returns a new slice so earlier requests are never aliased.
func appendMessages(msgs []schemas.Message, extra ...schemas.Message) []schemas.Message {
	out := make([]schemas.Message, 0, len(msgs)+len(extra))
	out = append(out, msgs...)
	return append(out, extra...)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
