package domain

import "context"

// Snapshot is one value produced by a streaming inference call. Text is the
// cumulative output so far, not a delta. A snapshot with Err set is the last
// one on its channel.
type Snapshot struct {
	Text string
	Err  error
}

// InferenceEngine is the external model backend. Any of the supported
// backends (chat daemon, batching server, local completion server) satisfies
// it without the composer, relay or store knowing which one is in use.
type InferenceEngine interface {
	// Infer blocks until the full response is available.
	Infer(ctx context.Context, prompt *Prompt, opts GenerateOptions) (string, error)
	// InferStream returns a finite channel of cumulative snapshots. The
	// producer closes the channel and stops early when ctx is done.
	InferStream(ctx context.Context, prompt *Prompt, opts GenerateOptions) (<-chan Snapshot, error)
	// Models lists what the engine can serve.
	Models(ctx context.Context) ([]ModelInfo, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	Name() string
	DefaultModel() string
}
