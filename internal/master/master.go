// Package master defines the MasterClient interface (§6) the core depends on, and a
// klient-backed HTTP implementation for talking to the actual configuration-management
// master.
package master

import (
	"context"

	"github.com/fleetward/fleetward/internal/models"
)

// TargetType discriminates how RunJob.Target is interpreted by the master.
type TargetType string

const (
	TargetGlob TargetType = "glob"
	TargetList TargetType = "list"
	TargetGrain TargetType = "grain"
)

// RunMode discriminates the master's job execution surface.
type RunMode string

const (
	RunLocal        RunMode = "local"
	RunLocalAsync   RunMode = "local_async"
	RunLocalBatch   RunMode = "local_batch"
	RunRunner       RunMode = "runner"
	RunRunnerAsync  RunMode = "runner_async"
	RunWheel        RunMode = "wheel"
	RunWheelAsync   RunMode = "wheel_async"
)

// RunJob is the parameter set for Client.RunJob.
type RunJob struct {
	Mode       RunMode
	Target     string
	TargetType TargetType
	Function   string
	Args       []string
	Kwargs     map[string]string
	BatchSize  string
}

// KeyState mirrors the master's key lifecycle bucket.
type KeyState string

const (
	KeyUnaccepted KeyState = "minions_pre"
	KeyAccepted   KeyState = "minions"
	KeyRejected   KeyState = "minions_rejected"
	KeyDenied     KeyState = "minions_denied"
)

// StreamEvent is one {tag, data} pair read off the event stream.
type StreamEvent struct {
	Tag  string
	Data string
}

// EventStream is a lazy, restartable sequence of events: Next blocks until an event is
// available, an error occurs, or ctx is cancelled. The loop in internal/eventloop owns
// reconnect; a stream is used exactly once per connection attempt.
type EventStream interface {
	Next(ctx context.Context) (StreamEvent, error)
	Close() error
}

// Client is the MasterClient interface (§6) consumed by the core.
type Client interface {
	Login(ctx context.Context, username, credential string) (*models.MasterToken, error)
	RunJob(ctx context.Context, tok *models.MasterToken, job RunJob) (interface{}, error)
	ListKeys(ctx context.Context, tok *models.MasterToken) ([]models.MinionKey, error)
	AcceptKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error
	RejectKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error
	DeleteKey(ctx context.Context, tok *models.MasterToken, state KeyState, id string) error
	RefreshMinion(ctx context.Context, tok *models.MasterToken, id string) error
	ListenEvents(ctx context.Context, tok *models.MasterToken) (EventStream, error)
}
