// Package parser defines the narrow capability interface every per-format
// stream parser implements (§9: "a registry of format descriptors
// plus a dispatch table replaces polymorphic class inheritance"). Concrete
// implementations live in the parser/qq, parser/wechat, parser/discord and
// parser/canonical subpackages.
package parser

import (
	"context"

	"github.com/chatlab/chatlab-core/internal/format"
	"github.com/chatlab/chatlab-core/internal/parser/event"
)

// BatchSize is the default message batch size (§4.2).
const BatchSize = 5000

// CommitEvery is the default import-pipeline commit interval in messages
// (§4.4 step 4).
const CommitEvery = 50000

// CheckpointEvery is the default WAL checkpoint interval in messages
// (§4.4 step 4).
const CheckpointEvery = 200000

// Stream is the contract every format implements. Parse pushes events into
// sink until it emits exactly one Done. Preprocess is nil for formats that
// never need one (§4.3).
type Stream interface {
	// Descriptor identifies which registry entry this parser answers for.
	Descriptor() format.Descriptor
	// Parse drives sink over path. ctx is consulted at batch boundaries for
	// cancellation (§5); on cancellation the parser must still emit a
	// terminal Done event with Stage = stop via sink.OnProgress followed by
	// sink.OnDone, so callers always see a well-formed terminal event.
	Parse(ctx context.Context, path string, sink event.Sink) error
}

// Preprocessor is implemented by formats that can rewrite oversized inputs
// into a trimmed temp file before Parse ever sees them (§4.3).
type Preprocessor interface {
	NeedsPreprocess(path string, size int64) bool
	Preprocess(ctx context.Context, path string, sink event.Sink) (tempPath string, err error)
}
