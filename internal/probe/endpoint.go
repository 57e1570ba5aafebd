package probe

import (
	"sync"

	"chain-watchdog/internal/config"
)

// EndpointSelector picks the endpoint a tick probes. Endpoints is never empty.
type EndpointSelector interface {
	Select(chain string, endpoints []string) string
}

// FirstEndpoint always probes the first configured endpoint.
type FirstEndpoint struct{}

// Select implements EndpointSelector.
func (FirstEndpoint) Select(_ string, endpoints []string) string {
	return endpoints[0]
}

// RoundRobin probes one endpoint per tick and moves to the next on Rotate, so
// reachability and orientation within a tick hit the same endpoint.
type RoundRobin struct {
	mu     sync.Mutex
	cursor int
}

// NewRoundRobin constructs a rotating selector.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

// Select implements EndpointSelector.
func (r *RoundRobin) Select(_ string, endpoints []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return endpoints[r.cursor%len(endpoints)]
}

// Rotate advances every chain to its next endpoint.
func (r *RoundRobin) Rotate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor++
}

// Rotator is implemented by selectors that advance once per tick.
type Rotator interface {
	Rotate()
}

// NewSelector maps a runtime.endpoint_policy value to a selector.
func NewSelector(policy string) EndpointSelector {
	if policy == config.EndpointPolicyRoundRobin {
		return NewRoundRobin()
	}
	return FirstEndpoint{}
}
