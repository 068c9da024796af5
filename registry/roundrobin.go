package registry

import (
	"errors"
	"sync/atomic"
)

var ErrNoInstances = errors.New("registry: no instances available")

// RoundRobinPicker distributes Pick calls evenly across a discovered
// instance set using a lock-free atomic counter.
type RoundRobinPicker struct {
	counter int64
}

// Pick returns the next instance in round-robin order.
func (p *RoundRobinPicker) Pick(instances []Instance) (*Instance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	index := atomic.AddInt64(&p.counter, 1) % int64(len(instances))
	return &instances[index], nil
}
