// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"context"
	"errors"
	"time"
)

// ErrModelUnavailable is returned by a ModelClient that has no usable
// external model configured.
var ErrModelUnavailable = errors.New("no external model configured")

// ModelPrompt is a single request to the external model. Both prompt and
// response are bounded by an explicit token budget to cap latency and cost.
type ModelPrompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ModelClient is the boundary to the opaque external text-completion
// service. The call may fail, time out, or return ill-formed content; it is
// never retried automatically, the fallback ladder is the retry strategy.
type ModelClient interface {
	// CompleteText runs a text-only completion and returns the raw content.
	CompleteText(ctx context.Context, prompt ModelPrompt) (string, error)

	// CompleteVision runs a completion over an encoded image plus prompt.
	CompleteVision(ctx context.Context, prompt ModelPrompt, imageBase64 string) (string, error)

	// Available reports whether an external model is configured at all.
	Available() bool
}

// ModelErrorClass buckets external failures for logging. Classification
// never changes the outcome: every class routes to the same fallback tier.
type ModelErrorClass string

const (
	ModelErrorQuota   ModelErrorClass = "quota"
	ModelErrorNetwork ModelErrorClass = "network"
	ModelErrorRefusal ModelErrorClass = "refusal"
	ModelErrorUnknown ModelErrorClass = "unknown"
)

// CacheRepository defines the interface for shared byte caching operations.
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Clock abstracts wall-clock time so expiry and eviction are
// deterministically testable without real time passing.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
