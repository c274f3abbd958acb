package attribution

import "github.com/okian/combatlink/pkg/logger"

// Option applies a configuration option to the Matcher.
type Option func(*Matcher)

// WithWindow bounds how old (in ms) a pending cause may be when its effect
// arrives. Zero or negative means unlimited.
func WithWindow(windowMs int64) Option {
	return func(m *Matcher) {
		if windowMs > 0 {
			m.window = windowMs
		}
	}
}

// WithLogger sets the logger used for attribution misses and diagnostics.
func WithLogger(l logger.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}
