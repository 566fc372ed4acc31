// Package driver runs a workflow definition against a session: it owns the
// goroutine that folds incoming events through the scheduler and container
// packages, and exposes pause/resume/cancel, grounded on the teacher's
// engine/inmem.eng (goroutine-per-run with a status map and signal
// channels for control) generalized from an activity/signal engine to a
// single-flow executor over flow.WorkflowDef.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/flowcore-dev/flowcore/container"
	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/hub"
	"github.com/flowcore-dev/flowcore/scheduler"
	"github.com/flowcore-dev/flowcore/state"
)

// RunStatus mirrors engine.RunStatus: the lifecycle states a driven session
// passes through.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusPaused    RunStatus = "paused"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// errorCode maps a flow.Kind to the documented "error:occurred" code string
// (spec.md S2, §4.F point 6, §7's error taxonomy), distinct from Kind's own
// internal string value.
func errorCode(kind flow.Kind) string {
	switch kind {
	case flow.KindProviderCacheMiss:
		return "cache-miss"
	case flow.KindProviderTimeout:
		return "timeout"
	case flow.KindProviderRateLimit:
		return "rate-limit"
	case flow.KindProviderNetwork:
		return "network"
	case flow.KindProviderInvalid:
		return "invalid-request"
	case flow.KindSchema:
		return "schema"
	case flow.KindStore:
		return "store"
	case flow.KindCyclicDependency:
		return "cyclic-dependency"
	default:
		return string(kind)
	}
}

// run tracks one in-flight or paused session.
type run struct {
	mu       sync.Mutex
	status   RunStatus
	err      error
	pausedAt *flow.SessionState
	cancel   context.CancelFunc
	done     chan struct{}
}

// Driver executes flow.WorkflowDef[S] instances against sessions, using hub
// for durable append/fan-out and scheduler.Scheduler[S] for agent
// activation.
type Driver[S any] struct {
	Hub       *hub.Hub
	Scheduler *scheduler.Scheduler[S]

	mu   sync.Mutex
	runs map[flow.SessionId]*run
}

// New returns a Driver wired to h and sched.
func New[S any](h *hub.Hub, sched *scheduler.Scheduler[S]) *Driver[S] {
	return &Driver[S]{Hub: h, Scheduler: sched, runs: make(map[flow.SessionId]*run)}
}

// Run starts def against sessionID in a new goroutine, emitting
// flow:started immediately and flow:completed/flow:paused on exit. The
// hub subscription that feeds the execution loop is registered
// synchronously before Run returns, so an event emitted right after Run
// returns is never missed by a not-yet-registered subscriber.
func (d *Driver[S]) Run(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S]) error {
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{status: StatusRunning, cancel: cancel, done: make(chan struct{})}

	d.mu.Lock()
	d.runs[sessionID] = r
	d.mu.Unlock()

	pending := make(chan flow.Event, 64)
	sub, err := d.Hub.Subscribe("*", hub.SubscriberFunc(func(_ context.Context, sid flow.SessionId, event flow.Event) error {
		if sid != sessionID {
			return nil
		}
		select {
		case pending <- event:
		default:
		}
		return nil
	}))
	if err != nil {
		cancel()
		return err
	}

	if _, err := d.Hub.Emit(runCtx, sessionID, flow.NewEvent(flow.EventFlowStarted, map[string]any{"workflow": def.Name})); err != nil {
		sub.Close()
		cancel()
		return err
	}

	go d.execute(runCtx, sessionID, def, r, sub, pending)
	return nil
}

// Wait blocks until sessionID's run completes, pauses, fails, or is
// cancelled, returning the terminal error (nil for normal completion or
// pause).
func (d *Driver[S]) Wait(sessionID flow.SessionId) error {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return flow.New(flow.KindNotPaused, "driver.Wait", "no run for session", nil)
	}
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Status returns sessionID's current RunStatus.
func (d *Driver[S]) Status(sessionID flow.SessionId) (RunStatus, bool) {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, true
}

// Pause requests cancellation of sessionID's run; the run's next checkpoint
// observes ctx.Err() and stops, leaving a resumable flow.SessionState
// derived from the events emitted so far.
func (d *Driver[S]) Pause(sessionID flow.SessionId) error {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return flow.New(flow.KindNotPaused, "driver.Pause", "no run for session", nil)
	}
	r.cancel()
	return nil
}

// Load returns the SessionState a paused run stopped at, or ok=false if
// sessionID isn't paused.
func (d *Driver[S]) Load(sessionID flow.SessionId) (flow.SessionState, bool) {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return flow.SessionState{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusPaused || r.pausedAt == nil {
		return flow.SessionState{}, false
	}
	return *r.pausedAt, true
}

// Dispose releases tracking for sessionID and clears its in-memory hub
// tail. It does not touch the durable log.
func (d *Driver[S]) Dispose(sessionID flow.SessionId) {
	d.mu.Lock()
	delete(d.runs, sessionID)
	d.mu.Unlock()
	d.Hub.ClearEventLog(sessionID)
}

// Checkpoint returns the container.Checkpoint a container.Foreach/Loop call
// inside an agent's OnOutput or a handler should use: it observes ctx for
// cancellation, and on cancellation derives and stashes SessionState before
// returning a flow.KindPause error. Callers building container nodes into
// their workflow logic obtain this from the Driver running their session.
func (d *Driver[S]) Checkpoint(sessionID flow.SessionId, def flow.WorkflowDef[S]) container.Checkpoint {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return func(ctx context.Context) error { return nil }
	}
	return d.checkpoint(sessionID, def, r)
}

func (d *Driver[S]) checkpoint(sessionID flow.SessionId, def flow.WorkflowDef[S], r *run) container.Checkpoint {
	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			snapshot := d.deriveSessionState(sessionID, def)
			r.mu.Lock()
			r.pausedAt = &snapshot
			r.mu.Unlock()
			return flow.New(flow.KindPause, "driver.checkpoint", "paused at checkpoint", ctx.Err())
		default:
			return nil
		}
	}
}

func (d *Driver[S]) deriveSessionState(sessionID flow.SessionId, def flow.WorkflowDef[S]) flow.SessionState {
	events := d.Hub.GetEventLog(sessionID)
	stack := state.DeriveContainerStack(events)
	snapshot := flow.SessionState{
		SessionID:      sessionID,
		WorkflowName:   def.Name,
		ContainerStack: stack,
		PausedAt:       time.Now().UTC(),
	}
	if len(stack) > 0 {
		snapshot.CurrentNodeID = stack[0].NodeID
	}
	return snapshot
}

// Resume restarts a paused session: it reinstalls a fresh abort
// controller, flips status back to running, delivers message into the
// session's pendingMessages, emits flow:resumed, and re-enters any saved
// container frame at its last checkpoint before falling back to the normal
// event loop (spec.md §4.D "resume", §4.H).
func (d *Driver[S]) Resume(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S], message string) error {
	d.mu.Lock()
	r, ok := d.runs[sessionID]
	d.mu.Unlock()
	if !ok {
		return flow.New(flow.KindNotPaused, "driver.Resume", "no run for session", nil)
	}

	r.mu.Lock()
	if r.status != StatusPaused || r.pausedAt == nil {
		r.mu.Unlock()
		return flow.New(flow.KindNotPaused, "driver.Resume", "session is not paused", nil)
	}
	pausedState := *r.pausedAt
	if message != "" {
		pausedState.PendingMessages = append(pausedState.PendingMessages, message)
	}
	r.status = StatusRunning
	r.pausedAt = nil
	r.done = make(chan struct{})
	r.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if err := d.Hub.Resume(runCtx, sessionID); err != nil {
		cancel()
		return err
	}

	pending := make(chan flow.Event, 64)
	sub, err := d.Hub.Subscribe("*", hub.SubscriberFunc(func(_ context.Context, sid flow.SessionId, event flow.Event) error {
		if sid != sessionID {
			return nil
		}
		select {
		case pending <- event:
		default:
		}
		return nil
	}))
	if err != nil {
		cancel()
		return err
	}

	if _, err := d.Hub.Emit(runCtx, sessionID, flow.NewEvent(flow.EventFlowResumed, map[string]any{
		"workflow": def.Name, "message": message,
	})); err != nil {
		sub.Close()
		cancel()
		return err
	}

	if message != "" {
		if _, err := d.Hub.Emit(runCtx, sessionID, flow.NewEvent("user:input", map[string]any{"text": message})); err != nil {
			sub.Close()
			cancel()
			return err
		}
	}

	go d.executeResumed(runCtx, sessionID, def, r, sub, pending, pausedState.ContainerStack)
	return nil
}

// execute is the per-run goroutine: it drives agent/container activation
// off events delivered on pending (fed by the subscription Run registered)
// until def.Until is satisfied or the run's context is cancelled.
func (d *Driver[S]) execute(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S], r *run, sub hub.Subscription, pending chan flow.Event) {
	defer close(r.done)
	defer sub.Close()
	d.runLoop(ctx, sessionID, def, r, pending)
}

// executeResumed is Resume's goroutine: it first re-enters any container
// frame the session was paused inside of, at the saved iteration, before
// joining the same event loop execute uses.
func (d *Driver[S]) executeResumed(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S], r *run, sub hub.Subscription, pending chan flow.Event, containerStack []flow.ContainerFrame) {
	defer close(r.done)
	defer sub.Close()

	if len(containerStack) > 0 {
		frame := containerStack[0]
		node, found := findContainerNode(def, frame.NodeID)
		if found {
			events := d.Hub.GetEventLog(sessionID)
			trigger := flow.Event{}
			if started, ok := findLastNodeStarted(events, frame.NodeID); ok {
				if t, ok := findEventByID(events, started.CausedBy); ok {
					trigger = t
				}
			}

			err := d.runContainer(ctx, sessionID, def, node, trigger, &frame, r)
			if err != nil {
				r.mu.Lock()
				r.status = StatusFailed
				r.err = err
				if flow.IsKind(err, flow.KindPause) {
					r.status = StatusPaused
					r.err = nil
				}
				r.mu.Unlock()

				name := flow.EventFlowCompleted
				if flow.IsKind(err, flow.KindPause) {
					name = flow.EventFlowPaused
				}
				_, _ = d.Hub.Emit(context.Background(), sessionID, flow.NewEvent(name, map[string]any{"workflow": def.Name}))
				return
			}
		}
	}

	d.runLoop(ctx, sessionID, def, r, pending)
}

func (d *Driver[S]) selectContainer(def flow.WorkflowDef[S], st S, trigger flow.Event) (flow.ContainerNode[S], bool) {
	for _, c := range def.Containers {
		if !c.ActivatesOn[trigger.Name] {
			continue
		}
		if c.When != nil && !c.When(st) {
			continue
		}
		return c, true
	}
	return flow.ContainerNode[S]{}, false
}

func findContainerNode[S any](def flow.WorkflowDef[S], nodeID string) (flow.ContainerNode[S], bool) {
	for _, c := range def.Containers {
		if c.NodeID == nodeID {
			return c, true
		}
	}
	return flow.ContainerNode[S]{}, false
}

func findLastNodeStarted(events []flow.Event, nodeID string) (flow.Event, bool) {
	var found flow.Event
	ok := false
	for _, e := range events {
		if e.Name != flow.EventNodeStarted {
			continue
		}
		if id, _ := e.Payload["nodeId"].(string); id == nodeID {
			found, ok = e, true
		}
	}
	return found, ok
}

func findEventByID(events []flow.Event, id flow.EventId) (flow.Event, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return flow.Event{}, false
}

// runContainer drives node through container.Foreach/Loop, wiring its
// checkpoint to this run's cancellation and its emit calls through the hub.
// resumeFrame, if non-nil, is the saved ContainerFrame to restart from
// (spec.md §4.G/§4.H: a resumed run re-enters at its saved frame instead of
// replaying completed iterations).
func (d *Driver[S]) runContainer(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S], node flow.ContainerNode[S], trigger flow.Event, resumeFrame *flow.ContainerFrame, r *run) error {
	checkpoint := d.checkpoint(sessionID, def, r)
	emit := func(ctx context.Context, name string, payload map[string]any) error {
		_, err := d.Hub.Emit(ctx, sessionID, flow.NewEvent(name, payload).WithCause(trigger))
		return err
	}

	events := d.Hub.GetEventLog(sessionID)
	currentState := state.Derive(def, events)

	var completed []flow.CompletedIteration
	if resumeFrame != nil {
		completed = append(completed, resumeFrame.CompletedIterations...)
	}

	child := func(ctx context.Context, item any, i int) (string, any, error) {
		outputKey, output, err := node.Body(ctx, item, i, currentState, trigger)
		if err == nil {
			completed = append(completed, flow.CompletedIteration{Index: i, Item: item, Outputs: map[string]any{outputKey: output}})
		}
		return outputKey, output, err
	}

	var runErr error
	switch node.Kind {
	case "loop":
		resumeFrom := 0
		if resumeFrame != nil {
			resumeFrom = resumeFrame.IterationIndex
		}
		until := func(i int) bool {
			if node.Until == nil {
				return true
			}
			return node.Until(currentState, i)
		}
		runErr = container.Loop(ctx, node.NodeID, resumeFrom, until, emit, checkpoint, child)
	default:
		items := node.Items(currentState, trigger)
		resumeFrom := 0
		if resumeFrame != nil {
			resumeFrom = resumeFrame.IterationIndex
			if resumeFrom > len(items) {
				resumeFrom = len(items)
			}
		}
		runErr = container.Foreach(ctx, node.NodeID, items, resumeFrom, emit, checkpoint, child)
	}
	if runErr != nil {
		return runErr
	}

	if node.OnComplete != nil {
		for _, e := range node.OnComplete(completed, trigger) {
			if e.CausedBy == "" {
				e = e.WithCause(trigger)
			}
			if _, err := d.Hub.Emit(ctx, sessionID, e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver[S]) runLoop(ctx context.Context, sessionID flow.SessionId, def flow.WorkflowDef[S], r *run, pending chan flow.Event) {
	activationErrs := make(chan error, 1)

	currentState := state.Derive(def, d.Hub.GetEventLog(sessionID))
	finish := func(status RunStatus, err error) {
		r.mu.Lock()
		r.status = status
		r.err = err
		r.mu.Unlock()

		name := flow.EventFlowCompleted
		if status == StatusPaused {
			name = flow.EventFlowPaused
		}
		_, _ = d.Hub.Emit(context.Background(), sessionID, flow.NewEvent(name, map[string]any{"workflow": def.Name}))
	}

	for {
		if def.Until != nil && def.Until(currentState) {
			finish(StatusCompleted, nil)
			return
		}

		select {
		case <-ctx.Done():
			snapshot := d.deriveSessionState(sessionID, def)
			r.mu.Lock()
			r.pausedAt = &snapshot
			r.mu.Unlock()
			finish(StatusPaused, nil)
			return
		case err := <-activationErrs:
			if flow.IsKind(err, flow.KindPause) {
				finish(StatusPaused, nil)
			} else {
				finish(StatusFailed, err)
			}
			return
		case event, ok := <-pending:
			if !ok {
				finish(StatusCompleted, nil)
				return
			}
			events := d.Hub.GetEventLog(sessionID)
			currentState = state.Derive(def, events)

			agent, found := scheduler.SelectAgent(def, currentState, event)
			if !found {
				if node, ok := d.selectContainer(def, currentState, event); ok {
					if err := d.runContainer(ctx, sessionID, def, node, event, nil, r); err != nil {
						activationErrs <- err
					}
				}
				continue
			}

			if _, err := d.Hub.Emit(ctx, sessionID, flow.NewEvent(flow.EventAgentStarted, map[string]any{"agentName": agent.Name}).WithCause(event)); err != nil {
				activationErrs <- err
				continue
			}

			onDomainEvent := func(de flow.Event) {
				_, _ = d.Hub.Emit(ctx, sessionID, de)
			}
			newEvents, err := d.Scheduler.Activate(ctx, agent, currentState, event, onDomainEvent)

			outcome := "success"
			if err != nil {
				outcome = "failure"
				if flow.IsKind(err, flow.KindPause) {
					outcome = "interrupted"
				}
			}
			completedPayload := map[string]any{"agentName": agent.Name, "outcome": outcome}
			if err != nil && outcome != "interrupted" {
				if fe, ok := flow.AsFlowError(err); ok {
					_, _ = d.Hub.Emit(ctx, sessionID, flow.NewEvent("error:occurred", map[string]any{
						"code": errorCode(fe.Kind()), "message": fe.Message(),
					}).WithCause(event))
				}
			}
			if _, emitErr := d.Hub.Emit(ctx, sessionID, flow.NewEvent(flow.EventAgentCompleted, completedPayload).WithCause(event)); emitErr != nil {
				activationErrs <- emitErr
				continue
			}

			if err != nil {
				activationErrs <- err
				continue
			}
			for _, ne := range newEvents {
				if _, err := d.Hub.Emit(ctx, sessionID, ne); err != nil {
					activationErrs <- err
					break
				}
			}
		}
	}
}
