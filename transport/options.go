package transport

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/opd-ai/meadowlink/crypto"
	"github.com/opd-ai/meadowlink/identity"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPort is the first UDP port a node tries to bind.
	DefaultPort = 8720
	// DefaultPortAttempts is how many consecutive ports are tried.
	DefaultPortAttempts = 8
	// DefaultHeartbeat is the interval between heartbeats and retransmissions.
	DefaultHeartbeat = 50 * time.Millisecond
	// DefaultTimeout is how long a silent peer is kept.
	DefaultTimeout = 5 * time.Second

	// MinHeartbeat and MaxHeartbeat bound MEADOW_HEARTBEAT_MS.
	MinHeartbeat = 5 * time.Millisecond
	MaxHeartbeat = 10 * time.Second
	// MinTimeout and MaxTimeout bound MEADOW_TIMEOUT_MS.
	MinTimeout = 100 * time.Millisecond
	MaxTimeout = 10 * time.Minute
)

// ErrInvalidOptions is returned by Validate.
var ErrInvalidOptions = errors.New("invalid transport options")

// Timing supplies the heartbeat and timeout intervals. The manager calls it
// on every Update, so implementations may change their values at any time.
type Timing interface {
	HeartbeatInterval() time.Duration
	TimeoutInterval() time.Duration
}

// ConfirmFunc asks whether hexKey is the public key the user expects. It
// is called during the handshake with an Unknown peer; returning false
// rejects the key.
type ConfirmFunc func(prompt, hexKey string) bool

// Options configures a Manager.
type Options struct {
	// Port is the first port tried by Listen; 0 binds an ephemeral port.
	Port uint16
	// PortAttempts is the number of consecutive ports Listen tries.
	PortAttempts int
	// Heartbeat and Timeout are served through Timing when Timing is nil.
	Heartbeat time.Duration
	Timeout   time.Duration

	// KeyPair is generated when nil.
	KeyPair *crypto.KeyPair
	// Confirm is consulted when an Unknown peer presents a key. A nil
	// Confirm rejects every such key.
	Confirm ConfirmFunc
	// Observer is told about forgotten peers.
	Observer Observer
	// Logger defaults to the logrus standard logger.
	Logger *logrus.Logger
	// TimeProvider drives Tick; defaults to the wall clock.
	TimeProvider TimeProvider
	// Host decides which addresses are this machine; defaults to
	// identity.DefaultHost().
	Host *identity.Host
	// Timing overrides Heartbeat and Timeout with a live source.
	Timing Timing
}

// NewOptions returns the default options.
func NewOptions() *Options {
	return &Options{
		Port:         DefaultPort,
		PortAttempts: DefaultPortAttempts,
		Heartbeat:    DefaultHeartbeat,
		Timeout:      DefaultTimeout,
	}
}

// HeartbeatInterval implements Timing.
func (o *Options) HeartbeatInterval() time.Duration { return o.Heartbeat }

// TimeoutInterval implements Timing.
func (o *Options) TimeoutInterval() time.Duration { return o.Timeout }

// Validate checks option bounds.
func (o *Options) Validate() error {
	if o.PortAttempts < 1 {
		return fmt.Errorf("%w: port attempts must be at least 1, got %d", ErrInvalidOptions, o.PortAttempts)
	}
	if int(o.Port)+o.PortAttempts-1 > 0xFFFF {
		return fmt.Errorf("%w: port range %d+%d overflows", ErrInvalidOptions, o.Port, o.PortAttempts)
	}
	if o.Timing == nil {
		if o.Heartbeat <= 0 {
			return fmt.Errorf("%w: heartbeat must be positive, got %v", ErrInvalidOptions, o.Heartbeat)
		}
		if o.Timeout <= o.Heartbeat {
			return fmt.Errorf("%w: timeout %v must exceed heartbeat %v", ErrInvalidOptions, o.Timeout, o.Heartbeat)
		}
	}
	return nil
}

// ApplyEnvironment overrides options from MEADOW_HEARTBEAT_MS,
// MEADOW_TIMEOUT_MS and MEADOW_PORT. Unparseable or out-of-range values are
// logged and ignored.
func (o *Options) ApplyEnvironment() {
	parseDurationSetting("MEADOW_HEARTBEAT_MS", MinHeartbeat, MaxHeartbeat, &o.Heartbeat)
	parseDurationSetting("MEADOW_TIMEOUT_MS", MinTimeout, MaxTimeout, &o.Timeout)
	parsePortSetting(o)
}

func parseDurationSetting(envVar string, minValue, maxValue time.Duration, target *time.Duration) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return
	}
	ms, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     envVar,
			"value":       raw,
			"error":       err.Error(),
			"using_value": *target,
		}).Warn("Failed to parse environment variable, using default")
		return
	}
	d := time.Duration(ms) * time.Millisecond
	if d < minValue || d > maxValue {
		logrus.WithFields(logrus.Fields{
			"function":    "parseDurationSetting",
			"env_var":     envVar,
			"value":       d,
			"min":         minValue,
			"max":         maxValue,
			"using_value": *target,
		}).Warn("Environment variable out of bounds, using default")
		return
	}
	*target = d
}

func parsePortSetting(o *Options) {
	raw := os.Getenv("MEADOW_PORT")
	if raw == "" {
		return
	}
	port, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parsePortSetting",
			"env_var":     "MEADOW_PORT",
			"value":       raw,
			"error":       err.Error(),
			"using_value": o.Port,
		}).Warn("Failed to parse MEADOW_PORT environment variable, using default")
		return
	}
	o.Port = uint16(port)
}
