package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/streamchat/internal/ai"
)

type State int

const (
	StateResolvingSession State = iota
	StateBuildingContext
	StateInvokingModel
	StateStreaming
	StatePersisting
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateResolvingSession:
		return "RESOLVING_SESSION"
	case StateBuildingContext:
		return "BUILDING_CONTEXT"
	case StateInvokingModel:
		return "INVOKING_MODEL"
	case StateStreaming:
		return "STREAMING"
	case StatePersisting:
		return "PERSISTING"
	case StateDone:
		return "DONE"
	case StateErrored:
		return "ERRORED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

const persistTimeout = 10 * time.Second

type PipelineConfig struct {
	SystemPrompt string
	Generation   ai.GenerationConfig
	// Timeout bounds model invocation and streaming together.
	Timeout time.Duration
	Policy  PersistPolicy
	// Retry is optional.
	Retry RetrySink
}

type Pipeline struct {
	sessions *SessionManager
	history  *History
	provider ai.Provider
	cfg      PipelineConfig
	log      *slog.Logger
}

func NewPipeline(sessions *SessionManager, history *History, provider ai.Provider, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.Policy == nil {
		cfg.Policy = CompleteOnly{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{sessions: sessions, history: history, provider: provider, cfg: cfg, log: logger}
}

type Request struct {
	OwnerID   string
	SessionID string
	Messages  []InboundMessage
}

type Result struct {
	SessionID string
	Content   string
	Model     string
	State     State
	// PersistErr is set when the reply was delivered but could not be stored.
	PersistErr error
}

// Stream is a single pass over one response. Chunks is closed after the
// final chunk or on failure; Wait reports which.
type Stream struct {
	SessionID string
	Chunks    <-chan StreamChunk

	done chan struct{}
	res  *Result
	err  error
}

// Wait blocks until the pipeline reaches DONE or ERRORED.
func (s *Stream) Wait() (*Result, error) {
	<-s.done
	return s.res, s.err
}

// Start resolves the session and builds the prompt before returning, so
// those failures reach the caller before anything is streamed. Model
// invocation, streaming and persistence run in the background.
func (p *Pipeline) Start(ctx context.Context, req Request) (*Stream, error) {
	input, err := LatestUserInput(req.Messages)
	if err != nil {
		return nil, err
	}

	p.trace(StateResolvingSession, req.SessionID)
	sessionID, err := p.sessions.ResolveOrCreate(ctx, req.OwnerID, req.SessionID, req.Messages)
	if err != nil {
		p.log.Warn("chat: resolve session failed", "owner_id", req.OwnerID, "session_id", req.SessionID, "err", err)
		return nil, err
	}

	p.trace(StateBuildingContext, sessionID)
	history, err := p.history.LoadOrdered(ctx, sessionID)
	if err != nil {
		p.log.Error("chat: load history failed", "session_id", sessionID, "err", err)
		return nil, err
	}
	prompt, err := BuildContext(p.cfg.SystemPrompt, history, input)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 16)
	s := &Stream{SessionID: sessionID, Chunks: out, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		defer close(out)
		s.res, s.err = p.run(ctx, sessionID, input, prompt, out)
	}()

	return s, nil
}

func (p *Pipeline) trace(s State, sessionID string) {
	p.log.Debug("chat: pipeline state", "state", s.String(), "session_id", sessionID)
}

func (p *Pipeline) run(ctx context.Context, sessionID, input string, prompt []ai.Message, out chan<- StreamChunk) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	res := &Result{SessionID: sessionID, Model: modelName(p.provider)}
	seq := 0
	emit := func(frag string) bool {
		seq++
		select {
		case out <- StreamChunk{SessionID: sessionID, Sequence: seq, Fragment: frag}:
			return true
		case <-runCtx.Done():
			return false
		}
	}

	p.trace(StateInvokingModel, sessionID)
	var b strings.Builder
	var provErr error

	if sp, ok := p.provider.(ai.StreamProvider); ok {
		chunks, errs := sp.StreamChat(runCtx, prompt, p.cfg.Generation)
		p.trace(StateStreaming, sessionID)
		interrupted := false
		for frag := range chunks {
			if !emit(frag) {
				interrupted = true
				break
			}
			b.WriteString(frag)
		}
		if interrupted {
			provErr = runCtx.Err()
		} else {
			provErr = <-errs
		}
	} else {
		comp, err := p.provider.Chat(runCtx, prompt, p.cfg.Generation)
		if err == nil {
			p.trace(StateStreaming, sessionID)
			if comp.Model != "" {
				res.Model = comp.Model
			}
			if emit(comp.Content) {
				b.WriteString(comp.Content)
			} else {
				err = runCtx.Err()
			}
		}
		provErr = err
	}

	res.Content = b.String()
	outcome, err := classify(ctx, runCtx, provErr, p.cfg.Timeout)

	if turns := p.cfg.Policy.Turns(outcome, input, res.Content); len(turns) > 0 {
		p.trace(StatePersisting, sessionID)
		res.PersistErr = p.persist(ctx, sessionID, turns)
	}

	if err != nil {
		res.State = StateErrored
		if outcome == OutcomeCancelled {
			p.log.Info("chat: stream cancelled", "session_id", sessionID, "partial_len", len(res.Content))
		} else {
			p.log.Error("chat: model provider failed", "session_id", sessionID, "err", err)
		}
		return res, err
	}

	res.State = StateDone
	p.trace(StateDone, sessionID)
	select {
	case out <- StreamChunk{SessionID: sessionID, Sequence: seq + 1, Done: true}:
	case <-ctx.Done():
	}
	return res, nil
}

// classify maps a provider result to an outcome. A provider that finished
// cleanly is complete even if the caller left at the same moment. Otherwise
// cancellation of the caller's context wins over the pipeline's own deadline.
func classify(parent, run context.Context, err error, timeout time.Duration) (Outcome, error) {
	if err == nil {
		return OutcomeComplete, nil
	}
	if parent.Err() != nil {
		return OutcomeCancelled, parent.Err()
	}
	if errors.Is(run.Err(), context.DeadlineExceeded) {
		return OutcomeFailed, &ProviderError{Err: fmt.Errorf("request exceeded %s: %w", timeout, context.DeadlineExceeded)}
	}
	return OutcomeFailed, &ProviderError{Err: err}
}

// persist runs on a context detached from the request so a client leaving
// right after the last chunk does not lose the turn.
func (p *Pipeline) persist(ctx context.Context, sessionID string, turns []Turn) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	at := time.Now()
	err := p.history.AppendTurnAt(pctx, sessionID, at, turns...)
	if err == nil {
		return nil
	}
	p.log.Error("chat: persist turn failed", "session_id", sessionID, "turns", len(turns), "err", err)

	if p.cfg.Retry != nil {
		if qerr := p.cfg.Retry.EnqueuePersist(pctx, sessionID, at, turns); qerr != nil {
			p.log.Error("chat: enqueue persist retry failed", "session_id", sessionID, "err", qerr)
		} else {
			p.log.Info("chat: persist retry enqueued", "session_id", sessionID)
		}
	}
	return err
}

func modelName(p ai.Provider) string {
	if n, ok := p.(ai.ModelNamer); ok {
		return n.ModelName()
	}
	return ""
}
