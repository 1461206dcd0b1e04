// Package discovery tracks whether a run is resolving an unknown environment
// variable through a placeholder. The protocol has two states: Normal, and
// Discovery for exactly one round after a placeholder was added.
package discovery

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"tinker/pkg/logx"
	"tinker/pkg/plan"
)

// Mode is the protocol state.
type Mode string

// Modes.
const (
	ModeNormal    Mode = "normal"
	ModeDiscovery Mode = "discovery"
)

// Events.
const (
	EventPlaceholderAdded statekit.EventType = "PLACEHOLDER_ADDED"
	EventRoundExecuted    statekit.EventType = "ROUND_EXECUTED"
)

const (
	stateNormal    statekit.StateID = statekit.StateID(ModeNormal)
	stateDiscovery statekit.StateID = statekit.StateID(ModeDiscovery)
)

// State is the current mode and, in discovery, the variable being resolved.
type State struct {
	Mode     Mode   `json:"mode"`
	Variable string `json:"variable,omitempty"`
}

// Active reports whether the state is Discovery.
func (s State) Active() bool {
	return s.Mode == ModeDiscovery
}

func (s State) String() string {
	if s.Active() {
		return fmt.Sprintf("Discovery(%s)", s.Variable)
	}
	return "Normal"
}

// Transition describes a state change.
type Transition struct {
	From State
	To   State
}

// Entered reports whether the transition started a discovery.
func (t Transition) Entered() bool {
	return !t.From.Active() && t.To.Active()
}

// Exited reports whether the transition ended a discovery.
func (t Transition) Exited() bool {
	return t.From.Active() && !t.To.Active()
}

type machineContext struct {
	Variable string
}

func setVariable(ctx **machineContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	if name, ok := event.Payload.(string); ok {
		(*ctx).Variable = name
	}
}

func clearVariable(ctx **machineContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Variable = ""
}

func hasVariable(ctx *machineContext, event statekit.Event) bool {
	name, ok := event.Payload.(string)
	return ok && name != ""
}

// newMachineConfig builds the Normal/Discovery statechart.
func newMachineConfig() (*statekit.MachineConfig[*machineContext], error) {
	return statekit.NewMachine[*machineContext]("discovery").
		WithInitial(stateNormal).
		WithContext(&machineContext{}).
		WithAction("setVariable", setVariable).
		WithAction("clearVariable", clearVariable).
		WithGuard("hasVariable", hasVariable).
		State(stateNormal).
			On(EventPlaceholderAdded).Target(stateDiscovery).Guard("hasVariable").Do("setVariable").
			Done().
		State(stateDiscovery).
			On(EventRoundExecuted).Target(stateNormal).Do("clearVariable").
			Done().
		Build()
}

// Machine is the discovery protocol for one run. It lives in memory only.
type Machine struct {
	interp *statekit.Interpreter[*machineContext]
	ctx    *machineContext
	logger *logx.Logger
}

// NewMachine returns a started machine in Normal mode.
func NewMachine(logger *logx.Logger) (*Machine, error) {
	if logger == nil {
		logger = logx.Nop()
	}
	cfg, err := newMachineConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build discovery state machine: %w", err)
	}
	mctx := &machineContext{}
	interp := statekit.NewInterpreter(cfg)
	interp.UpdateContext(func(c **machineContext) {
		*c = mctx
	})
	interp.Start()
	return &Machine{interp: interp, ctx: mctx, logger: logger}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	if m.interp.Matches(stateDiscovery) {
		return State{Mode: ModeDiscovery, Variable: m.ctx.Variable}
	}
	return State{Mode: ModeNormal}
}

// Observe advances the protocol after a round. In Discovery the round just
// executed was the resolution round, so the machine returns to Normal
// whatever its outcome. In Normal, a successful placeholder call in records
// enters Discovery for that variable. changed is false when the state stayed
// the same.
func (m *Machine) Observe(records []plan.ActionRecord) (t Transition, changed bool) {
	from := m.State()

	if from.Active() {
		m.interp.Send(statekit.Event{Type: EventRoundExecuted})
	} else if name, ok := plan.SuccessfulPlaceholder(records); ok {
		m.interp.Send(statekit.Event{Type: EventPlaceholderAdded, Payload: name})
	}

	to := m.State()
	if to == from {
		return Transition{From: from, To: to}, false
	}
	m.logger.DebugState("transition", to.String(), "from", from.String())
	if to.Active() {
		m.logger.Info("🔍 Entering DISCOVERY MODE for variable: %s", to.Variable)
	} else {
		m.logger.Info("✅ Discovery for %s complete, returning to normal mode", from.Variable)
	}
	return Transition{From: from, To: to}, true
}
