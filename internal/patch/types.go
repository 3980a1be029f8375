package patch

import (
	"context"
)

// Entry is one patch of a repository. Entries are installed in slice order.
type Entry struct {
	Repository    string   `cbor:"repository" yaml:"repository"`
	VersionID     string   `cbor:"version_id" yaml:"version_id"`
	Size          int64    `cbor:"size" yaml:"size"`
	URL           string   `cbor:"url" yaml:"url"`
	HashType      string   `cbor:"hash_type,omitempty" yaml:"hash_type,omitempty"`
	HashBlockSize int64    `cbor:"hash_block_size,omitempty" yaml:"hash_block_size,omitempty"`
	Hashes        []string `cbor:"hashes,omitempty" yaml:"hashes,omitempty"`
}

type FailureReason int

const (
	FailureGeneric FailureReason = iota
	FailureVerification
	FailureCorruptAccount
)

// FailureContext describes a per-entry failure reported by the engine.
type FailureContext struct {
	Reason  FailureReason `cbor:"reason"`
	Message string        `cbor:"message,omitempty"`
}

// Engine is the external download and install engine. The live accessors are
// polled concurrently with Apply.
type Engine interface {
	CurrentIndex() int
	Downloads() []Entry
	// AllDownloadsLength returns the bytes left to download, or -1 when unknown.
	AllDownloadsLength() int64
	Speeds() []int64
	Apply(ctx context.Context, resume bool) error
	OnFailed(func(Entry, FailureContext))
}

type Strategy string

const (
	StrategyDefault   Strategy = "default"
	StrategySegmented Strategy = "segmented"
)

type EngineConfig struct {
	Strategy       Strategy
	SpeedLimit     int64
	Repository     string
	Patches        []Entry
	GamePath       string
	PatchCachePath string
	// Installer and Launcher name the collaborator executables used by the engine.
	Installer string
	Launcher  string
	SessionID string
}

type EngineFactory func(EngineConfig) (Engine, error)

// Progress is one snapshot published while patches are applied.
type Progress struct {
	Repository     string
	CurrentIndex   int
	TotalCount     int
	BytesRemaining int64
	Speed          int64
	Ratio          float64
	Line           string
}
