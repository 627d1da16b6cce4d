package config

import (
	"regexp"
	"strconv"
	"time"

	"github.com/c360/streampilot/errors"
)

// Recognized property keys. Names follow the runtime's flat dotted
// convention so operators can carry them over unchanged.
const (
	// ApplicationServer is the self endpoint (host:port) announced to the
	// cluster. Required for federated query participation.
	ApplicationServer = "application.server"

	// NumStreamThreads is the user-configured worker baseline.
	NumStreamThreads = "num.stream.threads"

	// MaxPollInterval and SessionTimeout derive the generic timeout used
	// for every blocking autopilot and query operation.
	MaxPollInterval = "max.poll.interval.ms"
	SessionTimeout  = "session.timeout.ms"

	// Autopilot coordination keys.
	AutopilotEnabled          = "autopilot.enabled"
	AutopilotLagThreshold     = "autopilot.lag.threshold"
	AutopilotThreadLimit      = "autopilot.stream-thread.limit"
	AutopilotInitialDelay     = "autopilot.period.initial-delay"
	AutopilotBetweenRuns      = "autopilot.period.between-runs"
	AutopilotExclusionPattern = "autopilot.exclusion-pattern"
)

// Built-in defaults, applied when a key is absent.
const (
	DefaultNumStreamThreads = 1
	DefaultMaxPollInterval  = 300_000
	DefaultSessionTimeout   = 45_000
	DefaultLagThreshold     = int64(10_000)
	DefaultThreadLimit      = 2
	DefaultInitialDelay     = 2 * time.Minute
	DefaultBetweenRuns      = 30 * time.Second
)

// DefaultExclusionPattern skips repartition topics, whose lag is an
// artifact of the topology rather than of consumer throughput.
const DefaultExclusionPattern = ".*-repartition$"

// Properties is a flat bag of runtime properties with typed access.
// The zero value is usable; lookups on missing keys return the supplied
// fallback.
type Properties map[string]string

// String returns the value for key, or fallback when absent or empty.
func (p Properties) String(key, fallback string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value for key, or fallback when absent or
// unparseable.
func (p Properties) Int(key string, fallback int) int {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Int64 returns the 64-bit integer value for key, or fallback.
func (p Properties) Int64(key string, fallback int64) int64 {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// Bool returns the boolean value for key, or fallback.
func (p Properties) Bool(key string, fallback bool) bool {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Duration returns the duration value for key, or fallback. Accepts Go
// duration strings ("30s") and bare integers, read as milliseconds.
func (p Properties) Duration(key string, fallback time.Duration) time.Duration {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

// Pattern compiles the regexp value for key. An absent key yields the
// fallback pattern; an invalid pattern is an error.
func (p Properties) Pattern(key, fallback string) (*regexp.Regexp, error) {
	v := p.String(key, fallback)
	re, err := regexp.Compile(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Properties", "Pattern", "compile "+key)
	}
	return re, nil
}

// GenericTimeout derives the timeout for blocking operations:
// max(max.poll.interval.ms, session.timeout.ms).
func (p Properties) GenericTimeout() time.Duration {
	maxPoll := p.Int(MaxPollInterval, DefaultMaxPollInterval)
	session := p.Int(SessionTimeout, DefaultSessionTimeout)
	timeout := maxPoll
	if session > timeout {
		timeout = session
	}
	return time.Duration(timeout) * time.Millisecond
}
