package olpclient

import "time"

// BackdownStrategy computes the sleep before the next attempt, given the
// initial backdown period and the (1-based) attempt number that just failed.
type BackdownStrategy func(initial time.Duration, attempt int) time.Duration

// RetryCondition decides whether a completed attempt should be retried.
type RetryCondition func(resp *Response, err error) bool

// RetrySettings is the enumerated retry configuration of spec.md 6.
// cmd/olp-read sets only MaxAttempts, from a single viper key; the
// mapstructure tags are not read by it. BackdownStrategy and
// RetryCondition are functions and carry no config-file representation;
// they're always filled in by DefaultRetrySettings at construction time.
type RetrySettings struct {
	MaxAttempts     int           `mapstructure:"max-attempts"`
	Timeout         time.Duration `mapstructure:"timeout"`
	InitialBackdown time.Duration `mapstructure:"initial-backdown"`
	BackdownStrategy
	RetryCondition
}

// DefaultRetrySettings matches the defaults documented in spec.md 4.1.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxAttempts:     3,
		Timeout:         30 * time.Second,
		InitialBackdown: 200 * time.Millisecond,
		BackdownStrategy: ExponentialBackdown,
		RetryCondition:   DefaultRetryCondition,
	}
}

// ExponentialBackdown doubles the initial backdown on every subsequent
// attempt: attempt 1 -> initial, attempt 2 -> 2*initial, ...
func ExponentialBackdown(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

var retriableStatuses = map[int]bool{
	429: true, 500: true, 501: true, 502: true, 503: true, 504: true,
	505: true, 506: true, 507: true, 508: true, 509: true, 510: true, 511: true,
	598: true, 599: true,
}

var retriableTransportStatuses = map[int]bool{
	StatusIO:             true,
	StatusOffline:        true,
	StatusTimeout:        true,
	StatusNetworkOverload: true,
}

// DefaultRetryCondition retries transport errors {IO, OFFLINE, TIMEOUT,
// NETWORK_OVERLOAD} and HTTP statuses {429, 500-511, 598, 599}, per
// spec.md 4.1.
func DefaultRetryCondition(resp *Response, err error) bool {
	if resp == nil {
		return true
	}
	if resp.Status < 0 {
		return retriableTransportStatuses[resp.Status]
	}
	return retriableStatuses[resp.Status]
}

func effectiveMaxAttempts(s RetrySettings) int {
	if s.MaxAttempts <= 0 {
		return 1
	}
	return s.MaxAttempts
}
