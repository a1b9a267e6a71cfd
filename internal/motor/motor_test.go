package motor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/gpio"
)

// gate records every level written and fails the test on shoot-through.
type gate struct {
	gpio.Memory
	name  string
	other *gate
	t     *testing.T
}

func (g *gate) Set(level bool) error {
	if level && g.other.Level() {
		g.t.Errorf("%s switched on while %s is on", g.name, g.other.name)
	}
	return g.Memory.Set(level)
}

func newTestDriver(t *testing.T) *Driver {
	t.Helper()
	var phases [3]*Phase
	for i := range phases {
		high := &gate{name: "high", t: t}
		low := &gate{name: "low", t: t}
		high.other, low.other = low, high
		p, err := NewPhase(high, low)
		require.NoError(t, err)
		phases[i] = p
	}
	return New(phases[0], phases[1], phases[2])
}

func TestRing(t *testing.T) {
	forward := []State{AB, AC, BC, BA, CA, CB, AB}
	for i := 0; i < len(forward)-1; i++ {
		assert.Equal(t, forward[i+1], forward[i].Next())
		assert.Equal(t, forward[i], forward[i+1].Previous())
	}
	assert.Equal(t, "CA", CA.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestStepAppliesPattern(t *testing.T) {
	d := newTestDriver(t)
	assert.Equal(t, AB, d.State())
	assert.Equal(t, [3]Level{Float, Float, Float}, d.Levels())

	want := map[State][3]Level{
		AC: {High, Float, Low},
		BC: {Float, High, Low},
		BA: {Low, High, Float},
		CA: {Low, Float, High},
		CB: {Float, Low, High},
		AB: {High, Low, Float},
	}
	for i := 0; i < 12; i++ {
		require.NoError(t, d.Step(true))
		assert.Equal(t, want[d.State()], d.Levels(), d.State().String())
	}

	require.NoError(t, d.Step(false))
	assert.Equal(t, CB, d.State())
	assert.Equal(t, want[CB], d.Levels())
}

func TestIdleAndBrake(t *testing.T) {
	d := newTestDriver(t)
	require.NoError(t, d.Step(true))

	require.NoError(t, d.Brake())
	assert.Equal(t, [3]Level{Low, Low, Low}, d.Levels())

	require.NoError(t, d.Idle())
	assert.Equal(t, [3]Level{Float, Float, Float}, d.Levels())
}

func TestRunSteps(t *testing.T) {
	d := newTestDriver(t)

	require.NoError(t, d.Run(context.Background(), 7, false, time.Millisecond))
	assert.Equal(t, CB, d.State())
	assert.Equal(t, [3]Level{Float, Float, Float}, d.Levels())
}

func TestRunUntilCancelled(t *testing.T) {
	d := newTestDriver(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, d.Run(ctx, 0, true, time.Millisecond))
	assert.Equal(t, [3]Level{Float, Float, Float}, d.Levels())
}

func TestRunRejectsInterval(t *testing.T) {
	assert.Error(t, newTestDriver(t).Run(context.Background(), 1, true, 0))
}

func TestOpenMemoryPins(t *testing.T) {
	d, err := Open(config.MotorConfig{})
	require.NoError(t, err)
	require.NoError(t, d.Step(true))
	assert.Equal(t, [3]Level{High, Float, Low}, d.Levels())
}

func TestOpenInvalidPin(t *testing.T) {
	_, err := Open(config.MotorConfig{A: config.PhaseConfig{High: config.PinConfig{Type: "spi"}}})
	assert.Error(t, err)
}

func fileGates(dir string) config.MotorConfig {
	gate := func(name string) config.PinConfig {
		return config.PinConfig{Type: "file", Path: filepath.Join(dir, name)}
	}
	return config.MotorConfig{
		A: config.PhaseConfig{High: gate("ah"), Low: gate("al")},
		B: config.PhaseConfig{High: gate("bh"), Low: gate("bl")},
		C: config.PhaseConfig{High: gate("ch"), Low: gate("cl")},
	}
}

// recordPins keeps every pin Open creates for the duration of the test.
func recordPins(t *testing.T) *[]gpio.Pin {
	t.Helper()
	var pins []gpio.Pin
	orig := openPin
	openPin = func(cfg config.PinConfig) (gpio.Pin, error) {
		p, err := orig(cfg)
		if err == nil {
			pins = append(pins, p)
		}
		return p, err
	}
	t.Cleanup(func() { openPin = orig })
	return &pins
}

func TestOpenReleasesPinsOnFailure(t *testing.T) {
	dir := t.TempDir()
	pins := recordPins(t)
	cfg := fileGates(dir)
	cfg.B.Low.Path = filepath.Join(dir, "missing", "bl")

	_, err := Open(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phase B low gate")

	require.Len(t, *pins, 3)
	for _, p := range *pins {
		assert.ErrorIs(t, p.Set(true), os.ErrClosed)
	}
}

func TestCloseReleasesFilePins(t *testing.T) {
	dir := t.TempDir()
	pins := recordPins(t)

	d, err := Open(fileGates(dir))
	require.NoError(t, err)
	require.NoError(t, d.Step(true))
	raw, err := os.ReadFile(filepath.Join(dir, "ah"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))

	require.NoError(t, d.Close())
	require.Len(t, *pins, 6)
	for _, p := range *pins {
		assert.ErrorIs(t, p.Set(false), os.ErrClosed)
	}
	assert.Error(t, d.Step(true))
}

func TestCloseMemoryPins(t *testing.T) {
	d, err := Open(config.MotorConfig{})
	require.NoError(t, err)
	assert.NoError(t, d.Close())
}
