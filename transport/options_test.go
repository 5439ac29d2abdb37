package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptionsDefaults(t *testing.T) {
	opts := NewOptions()
	assert.Equal(t, uint16(DefaultPort), opts.Port)
	assert.Equal(t, DefaultPortAttempts, opts.PortAttempts)
	assert.Equal(t, 50*time.Millisecond, opts.HeartbeatInterval())
	assert.Equal(t, 5*time.Second, opts.TimeoutInterval())
	assert.NoError(t, opts.Validate())
}

func TestOptionsValidate(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(*Options)
	}{
		{"no port attempts", func(o *Options) { o.PortAttempts = 0 }},
		{"port range overflow", func(o *Options) { o.Port = 65530; o.PortAttempts = 10 }},
		{"zero heartbeat", func(o *Options) { o.Heartbeat = 0 }},
		{"timeout below heartbeat", func(o *Options) { o.Timeout = o.Heartbeat }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts := NewOptions()
			tc.modify(opts)
			assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
		})
	}
}

func TestOptionsValidateSkipsIntervalsWithTiming(t *testing.T) {
	opts := NewOptions()
	opts.Heartbeat = 0
	opts.Timing = &liveTiming{heartbeat: time.Second, timeout: time.Minute}
	assert.NoError(t, opts.Validate())
}

func TestApplyEnvironment(t *testing.T) {
	t.Setenv("MEADOW_HEARTBEAT_MS", "20")
	t.Setenv("MEADOW_TIMEOUT_MS", "1500")
	t.Setenv("MEADOW_PORT", "9000")

	opts := NewOptions()
	opts.ApplyEnvironment()

	assert.Equal(t, 20*time.Millisecond, opts.Heartbeat)
	assert.Equal(t, 1500*time.Millisecond, opts.Timeout)
	assert.Equal(t, uint16(9000), opts.Port)
	require.NoError(t, opts.Validate())
}

func TestApplyEnvironmentIgnoresBadValues(t *testing.T) {
	testCases := []struct {
		name, key, value string
	}{
		{"unparseable heartbeat", "MEADOW_HEARTBEAT_MS", "fast"},
		{"heartbeat too small", "MEADOW_HEARTBEAT_MS", "1"},
		{"timeout too large", "MEADOW_TIMEOUT_MS", "999999999"},
		{"port out of range", "MEADOW_PORT", "70000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			opts := NewOptions()
			opts.ApplyEnvironment()
			assert.Equal(t, NewOptions(), opts)
		})
	}
}
