package gpio

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/ethresponder/internal/config"
	"firestige.xyz/ethresponder/internal/core"
)

func TestMemory(t *testing.T) {
	p, err := Open(config.PinConfig{Type: "memory"})
	require.NoError(t, err)
	assert.False(t, p.Level())
	require.NoError(t, p.Set(true))
	assert.True(t, p.Level())
}

func TestFile(t *testing.T) {
	tests := []struct {
		name      string
		activeLow bool
		onRaw     string
		offRaw    string
	}{
		{"active high", false, "1", "0"},
		{"active low", true, "0", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "value")
			p, err := Open(config.PinConfig{Type: "file", Path: path, ActiveLow: tt.activeLow})
			require.NoError(t, err)
			defer p.(*File).Close()

			raw, _ := os.ReadFile(path)
			assert.Equal(t, tt.offRaw, string(raw))

			require.NoError(t, p.Set(true))
			raw, _ = os.ReadFile(path)
			assert.Equal(t, tt.onRaw, string(raw))
			assert.True(t, p.Level())
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(config.PinConfig{Type: "pwm"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = Open(config.PinConfig{Type: "file", Path: filepath.Join(t.TempDir(), "missing", "value")})
	assert.Error(t, err)
}

func TestObserved(t *testing.T) {
	var changes []bool
	p := Observe(&Memory{}, func(level bool) { changes = append(changes, level) })

	require.NoError(t, p.Set(true))
	require.NoError(t, p.Set(true))
	require.NoError(t, p.Set(false))

	assert.Equal(t, []bool{true, false}, changes)
	assert.False(t, p.Level())
}

func TestBlink(t *testing.T) {
	var toggles atomic.Int32
	p := Observe(&Memory{}, func(bool) { toggles.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Blink(ctx, p, time.Millisecond) }()

	assert.Eventually(t, func() bool { return toggles.Load() >= 4 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.False(t, p.Level(), "line is left inactive")
}

func TestBlinkErrors(t *testing.T) {
	assert.Error(t, Blink(context.Background(), &Memory{}, 0))

	f, err := OpenFile(filepath.Join(t.TempDir(), "value"), false)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.ErrorIs(t, Blink(context.Background(), f, time.Millisecond), os.ErrClosed)
}
