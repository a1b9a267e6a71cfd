// Package motor drives a three-phase bridge through the six-step
// commutation sequence.
package motor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/gpio"
	"firestige.xyz/ethresponder/internal/log"
)

// State is a commutation step: the first phase is driven to the supply,
// the second to ground, the third floats.
type State uint8

const (
	AB State = iota
	AC
	BC
	BA
	CA
	CB

	numStates = 6
)

var stateNames = [numStates]string{"AB", "AC", "BC", "BA", "CA", "CB"}

func (s State) String() string {
	if s >= numStates {
		return fmt.Sprintf("State(%d)", uint8(s))
	}
	return stateNames[s]
}

// Next returns the following step of the forward sequence.
func (s State) Next() State { return (s + 1) % numStates }

// Previous returns the preceding step.
func (s State) Previous() State { return (s + numStates - 1) % numStates }

// Level is the output of one half bridge.
type Level uint8

const (
	Float Level = iota
	High
	Low
)

func (l Level) String() string {
	switch l {
	case High:
		return "high"
	case Low:
		return "low"
	default:
		return "float"
	}
}

// pattern[s] holds the A, B and C levels of step s.
var pattern = [numStates][3]Level{
	AB: {High, Low, Float},
	AC: {High, Float, Low},
	BC: {Float, High, Low},
	BA: {Low, High, Float},
	CA: {Low, Float, High},
	CB: {Float, Low, High},
}

// Pattern returns the phase levels applied in step s.
func (s State) Pattern() [3]Level { return pattern[s%numStates] }

// Phase is one half bridge with a high-side and a low-side gate. Both gates
// are never on at the same time: the gate being released is always switched
// before the other one is driven.
type Phase struct {
	high gpio.Pin
	low  gpio.Pin
}

// NewPhase switches both gates off and returns the phase.
func NewPhase(high, low gpio.Pin) (*Phase, error) {
	p := &Phase{high: high, low: low}
	if err := p.Set(Float); err != nil {
		return nil, err
	}
	return p, nil
}

// Set drives the phase to l.
func (p *Phase) Set(l Level) error {
	switch l {
	case High:
		if err := p.low.Set(false); err != nil {
			return err
		}
		return p.high.Set(true)
	case Low:
		if err := p.high.Set(false); err != nil {
			return err
		}
		return p.low.Set(true)
	default:
		return errors.Join(p.high.Set(false), p.low.Set(false))
	}
}

// Level reports the level currently applied.
func (p *Phase) Level() Level {
	switch {
	case p.high.Level():
		return High
	case p.low.Level():
		return Low
	default:
		return Float
	}
}

// Driver steps three phases through the commutation ring.
type Driver struct {
	phases [3]*Phase
	state  State
}

// New returns a driver positioned at AB with all phases floating.
func New(a, b, c *Phase) *Driver {
	return &Driver{phases: [3]*Phase{a, b, c}, state: AB}
}

var openPin = gpio.Open

// Open builds a driver on the pins described by cfg. Pins opened before a
// failure are released.
func Open(cfg config.MotorConfig) (*Driver, error) {
	pins, err := cfg.Pins()
	if err != nil {
		return nil, err
	}

	var opened []gpio.Pin
	fail := func(err error) (*Driver, error) {
		for _, p := range opened {
			closePin(p)
		}
		return nil, err
	}

	var phases [3]*Phase
	for i := range phases {
		high, err := openPin(pins[2*i])
		if err != nil {
			return fail(fmt.Errorf("phase %c high gate: %w", 'A'+i, err))
		}
		opened = append(opened, high)
		low, err := openPin(pins[2*i+1])
		if err != nil {
			return fail(fmt.Errorf("phase %c low gate: %w", 'A'+i, err))
		}
		opened = append(opened, low)
		if phases[i], err = NewPhase(high, low); err != nil {
			return fail(fmt.Errorf("phase %c: %w", 'A'+i, err))
		}
	}
	return New(phases[0], phases[1], phases[2]), nil
}

func closePin(p gpio.Pin) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Close releases the gate lines. The levels last applied are kept.
func (d *Driver) Close() error {
	var errs []error
	for i, p := range d.phases {
		if err := errors.Join(closePin(p.high), closePin(p.low)); err != nil {
			errs = append(errs, fmt.Errorf("phase %c: %w", 'A'+i, err))
		}
	}
	return errors.Join(errs...)
}

// State returns the current step.
func (d *Driver) State() State { return d.state }

// Levels returns the levels currently applied to A, B and C.
func (d *Driver) Levels() [3]Level {
	return [3]Level{d.phases[0].Level(), d.phases[1].Level(), d.phases[2].Level()}
}

// Step advances one step, backwards unless forward, and applies it.
func (d *Driver) Step(forward bool) error {
	if forward {
		d.state = d.state.Next()
	} else {
		d.state = d.state.Previous()
	}
	return d.apply(d.state.Pattern())
}

// Idle floats every phase.
func (d *Driver) Idle() error {
	return d.apply([3]Level{Float, Float, Float})
}

// Brake shorts the windings through the low-side gates.
func (d *Driver) Brake() error {
	return d.apply([3]Level{Low, Low, Low})
}

// apply releases the phases leaving the supply rail first so that no two
// phases are ever driven high at once during a transition.
func (d *Driver) apply(levels [3]Level) error {
	for i, p := range d.phases {
		if levels[i] != High {
			if err := p.Set(levels[i]); err != nil {
				return fmt.Errorf("phase %c: %w", 'A'+i, err)
			}
		}
	}
	for i, p := range d.phases {
		if levels[i] == High {
			if err := p.Set(High); err != nil {
				return fmt.Errorf("phase %c: %w", 'A'+i, err)
			}
		}
	}
	return nil
}

// Run steps every interval until steps were made or ctx is done. Zero steps
// runs until ctx is done. The phases are left floating.
func (d *Driver) Run(ctx context.Context, steps int, forward bool, interval time.Duration) (err error) {
	if interval <= 0 {
		return fmt.Errorf("interval %s must be positive", interval)
	}
	defer func() {
		err = errors.Join(err, d.Idle())
	}()

	l := log.GetLogger().WithField("component", "motor")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; steps == 0 || n < steps; n++ {
		if err := d.Step(forward); err != nil {
			return err
		}
		if l.IsDebugEnabled() {
			l.WithFields(map[string]interface{}{"step": n + 1, "state": d.state.String()}).Debug("commutated")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
