package bleperiph

import (
	"time"
)

// SessionOption is implemented by the session orchestrator to accept
// configuration options.
type SessionOption interface {
	SetName(name string) error
	SetAdvParams(p AdvParams) error
	SetNotifications(enabled bool) error
	SetNotifyPeriod(d time.Duration) error
	SetWelcome(msg string) error
	SetKeepAlive(d time.Duration) error
	SetRetryDelay(d time.Duration) error
	SetLogger(l Logger) error
}

// An Option is a configuration function, which configures the session.
type Option func(SessionOption) error

// OptName sets the complete local name that is advertised.
func OptName(name string) Option {
	return func(opt SessionOption) error {
		return opt.SetName(name)
	}
}

// OptAdvParams overrides the default advertising parameters.
func OptAdvParams(p AdvParams) Option {
	return func(opt SessionOption) error {
		return opt.SetAdvParams(p)
	}
}

// OptNotifications enables the periodic status notification task.
func OptNotifications(enabled bool) Option {
	return func(opt SessionOption) error {
		return opt.SetNotifications(enabled)
	}
}

// OptNotifyPeriod sets the timer period of the periodic notification task.
func OptNotifyPeriod(d time.Duration) Option {
	return func(opt SessionOption) error {
		return opt.SetNotifyPeriod(d)
	}
}

// OptWelcome sets the message sent right after a central connects. An
// empty message disables it.
func OptWelcome(msg string) Option {
	return func(opt SessionOption) error {
		return opt.SetWelcome(msg)
	}
}

// OptKeepAlive sets how often the link liveness is asserted.
func OptKeepAlive(d time.Duration) Option {
	return func(opt SessionOption) error {
		return opt.SetKeepAlive(d)
	}
}

// OptRetryDelay sets the pause after a failed advertise/accept attempt.
func OptRetryDelay(d time.Duration) Option {
	return func(opt SessionOption) error {
		return opt.SetRetryDelay(d)
	}
}

// OptLogger replaces the logger used by the session.
func OptLogger(l Logger) Option {
	return func(opt SessionOption) error {
		return opt.SetLogger(l)
	}
}
