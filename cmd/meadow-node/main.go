// Package main runs a meadowlink node: a chat peer on the secured peer
// transport that finds other nodes on the local network by broadcast.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/opd-ai/meadowlink/transport"
	"github.com/sirupsen/logrus"
)

// CLIConfig holds the command-line configuration.
type CLIConfig struct {
	port          uint
	portAttempts  int
	heartbeat     time.Duration
	timeout       time.Duration
	name          string
	connect       string
	statusAddr    string
	logLevel      string
	autoAccept    bool
	announceEvery time.Duration
	frame         time.Duration

	// set records which flags were given explicitly.
	set map[string]bool
}

// parseCLIFlags parses args and returns the configuration.
func parseCLIFlags(args []string) (*CLIConfig, error) {
	config := &CLIConfig{set: make(map[string]bool)}
	fs := flag.NewFlagSet("meadow-node", flag.ContinueOnError)

	// Network configuration
	fs.UintVar(&config.port, "port", transport.DefaultPort, "First UDP port to try")
	fs.IntVar(&config.portAttempts, "attempts", transport.DefaultPortAttempts, "Number of consecutive ports to try")
	fs.StringVar(&config.connect, "connect", "", "Peer to contact at startup: <hex key>@host[:port], host[:port] or /ip4/.../udp/...")

	// Timing configuration
	fs.DurationVar(&config.heartbeat, "heartbeat", transport.DefaultHeartbeat, "Heartbeat and retransmission interval")
	fs.DurationVar(&config.timeout, "timeout", transport.DefaultTimeout, "Silence after which a peer is forgotten")
	fs.DurationVar(&config.announceEvery, "announce", 2*time.Second, "Interval between local network announcements (0 disables)")
	fs.DurationVar(&config.frame, "frame", 10*time.Millisecond, "Control loop period")

	// Identity and trust
	fs.StringVar(&config.name, "name", defaultName(), "Name shown to other peers")
	fs.BoolVar(&config.autoAccept, "auto-accept", false, "Trust every presented public key without asking")

	// Logging and status
	fs.StringVar(&config.logLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	fs.StringVar(&config.statusAddr, "status-addr", "", "Serve JSON status on this address, e.g. 127.0.0.1:8780")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { config.set[f.Name] = true })
	return config, nil
}

func defaultName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "meadow"
	}
	return host
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(config *CLIConfig) error {
	if config.port > 65535 {
		return fmt.Errorf("invalid port: must be between 0 and 65535")
	}
	if config.portAttempts < 1 {
		return fmt.Errorf("port attempts must be at least 1")
	}
	if config.heartbeat <= 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	if config.timeout <= config.heartbeat {
		return fmt.Errorf("timeout must exceed the heartbeat interval")
	}
	if config.frame <= 0 {
		return fmt.Errorf("frame period must be positive")
	}
	if config.announceEvery < 0 {
		return fmt.Errorf("announce interval cannot be negative")
	}
	if strings.TrimSpace(config.name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	return nil
}

// buildOptions layers explicit flags over environment overrides over the
// transport defaults.
func buildOptions(config *CLIConfig) *transport.Options {
	opts := transport.NewOptions()
	opts.ApplyEnvironment()

	if config.set["port"] {
		opts.Port = uint16(config.port)
	}
	if config.set["attempts"] {
		opts.PortAttempts = config.portAttempts
	}
	if config.set["heartbeat"] {
		opts.Heartbeat = config.heartbeat
	}
	if config.set["timeout"] {
		opts.Timeout = config.timeout
	}
	return opts
}

// setupLogging configures the standard logrus logger.
func setupLogging(level string) error {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(parsed)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// setupSignalHandling cancels the context on interrupt.
func setupSignalHandling(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	go func() {
		sig := <-sigChan
		logrus.WithField("signal", sig.String()).Info("Shutting down")
		cancel()
	}()
}

// readLines forwards lines from r until it is exhausted.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

func main() {
	config, err := parseCLIFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		os.Exit(2)
	}
	if err := validateCLIConfig(config); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if err := setupLogging(config.logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalHandling(cancel)

	input := readLines(os.Stdin)
	board := newStatusBoard()
	n := newNode(nodeConfig{
		name:          config.name,
		announceEvery: config.announceEvery,
		input:         input,
		out:           os.Stdout,
		board:         board,
	})

	opts := buildOptions(config)
	opts.Confirm = newConfirm(config.autoAccept, input, os.Stdout)
	opts.Observer = n

	m, err := transport.Listen(opts)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to start transport")
	}
	defer m.Close()
	n.attach(m)

	if config.statusAddr != "" {
		srv := startStatusServer(config.statusAddr, board)
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fmt.Printf("Invite code: %s\n", m.InviteCode())
	if config.connect != "" {
		if err := n.connect(config.connect); err != nil {
			logrus.WithError(err).Error("Failed to contact peer")
		}
	}

	n.run(ctx, config.frame)
}
