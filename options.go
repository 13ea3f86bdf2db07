// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cryptol

import (
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultControlPort is the port cryptol-server listens on for control
	// requests.
	DefaultControlPort = 5555

	// DefaultServerExecutable is launched by WithLaunch when no path is given.
	DefaultServerExecutable = "cryptol-server"

	defaultGraceInterval    = 500 * time.Millisecond
	defaultStopTimeout      = 5 * time.Second
	defaultInterruptTimeout = 10 * time.Second
	exitNoticeTimeout       = time.Second
)

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	controlPort      int
	codec            Codec
	logger           *slog.Logger
	connectTimeout   time.Duration
	interruptTimeout time.Duration
	launch           *launchOptions
}

type launchOptions struct {
	executable  string
	args        []string
	grace       time.Duration
	stopTimeout time.Duration
	stderr      io.Writer
}

func defaultSessionOptions() sessionOptions {
	return sessionOptions{
		controlPort:      DefaultControlPort,
		codec:            defaultCodec,
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		connectTimeout:   defaultDialTimeout,
		interruptTimeout: defaultInterruptTimeout,
	}
}

// WithControlPort sets the port of the server's control socket.
func WithControlPort(port int) Option {
	return func(o *sessionOptions) { o.controlPort = port }
}

// WithCodec sets the message codec. The stock server speaks JSON.
func WithCodec(c Codec) Option {
	return func(o *sessionOptions) { o.codec = c }
}

// WithLogger sets the logger for session and module events. The default
// discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *sessionOptions) { o.logger = logger }
}

// WithConnectTimeout bounds each transport's connect phase.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.connectTimeout = d }
}

// WithInterruptTimeout bounds the interrupt acknowledgement and the drain of
// the interrupted reply.
func WithInterruptTimeout(d time.Duration) Option {
	return func(o *sessionOptions) { o.interruptTimeout = d }
}

// WithLaunch makes the session start the server itself and stop it on Exit.
// An empty executable means DefaultServerExecutable; no args means
// "--port <control port>".
func WithLaunch(executable string, args ...string) Option {
	return func(o *sessionOptions) {
		if o.launch == nil {
			o.launch = &launchOptions{grace: defaultGraceInterval, stopTimeout: defaultStopTimeout}
		}
		o.launch.executable = executable
		o.launch.args = args
	}
}

// WithGraceInterval sets how long a launched server must stay up before the
// session connects to it.
func WithGraceInterval(d time.Duration) Option {
	return func(o *sessionOptions) {
		if o.launch != nil {
			o.launch.grace = d
		}
	}
}

// WithServerStderr forwards a launched server's standard error to w.
func WithServerStderr(w io.Writer) Option {
	return func(o *sessionOptions) {
		if o.launch != nil {
			o.launch.stderr = w
		}
	}
}
