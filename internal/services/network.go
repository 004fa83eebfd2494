package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/client"
	"github.com/kiranshivaraju/lorastudio/internal/training"
	"github.com/kiranshivaraju/lorastudio/pkg/models"
)

// NetworkState is the last known reachability of the API.
type NetworkState int

const (
	Unknown NetworkState = iota
	Online
	Offline
)

func (s NetworkState) String() string {
	switch s {
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Checker probes the API.
type Checker interface {
	Ready(ctx context.Context) error
}

// Network tracks API reachability from explicit checks and from the
// outcome of regular requests.
type Network struct {
	checker Checker
	b       *broadcaster[NetworkState]

	mu    sync.Mutex
	state NetworkState
}

func NewNetwork(c Checker) *Network {
	return &Network{checker: c, b: newBroadcaster[NetworkState]()}
}

// Check probes the API once and records the result.
func (n *Network) Check(ctx context.Context) NetworkState {
	err := n.checker.Ready(ctx)
	if errors.Is(err, context.Canceled) {
		return n.State()
	}
	n.Observe(err)
	return n.State()
}

// Watch checks every interval until ctx is done.
func (n *Network) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.Check(ctx)
		}
	}
}

// Observe records the outcome of a request. Only transport failures mark
// the API offline; any response from it, including a rejection, means online.
func (n *Network) Observe(err error) {
	state := Online
	if errors.Is(err, client.ErrAPIUnreachable) || errors.Is(err, client.ErrAPITimeout) {
		state = Offline
	}

	n.mu.Lock()
	prev := n.state
	n.state = state
	n.mu.Unlock()

	if prev != state {
		slog.Info("network state changed", "from", prev, "to", state)
		n.b.publish(state)
	}
}

func (n *Network) State() NetworkState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Network) Subscribe() (<-chan NetworkState, func()) {
	return n.b.subscribe()
}

func (n *Network) Close() { n.b.close() }

// Fetcher wraps f so every poll updates the network state.
func (n *Network) Fetcher(f training.Fetcher) training.Fetcher {
	return observedFetcher{f: f, n: n}
}

type observedFetcher struct {
	f training.Fetcher
	n *Network
}

func (o observedFetcher) ActiveJob(ctx context.Context) (*models.Job, error) {
	job, err := o.f.ActiveJob(ctx)
	if !errors.Is(err, context.Canceled) {
		o.n.Observe(err)
	}
	return job, err
}
