// Package registry implements client-side service discovery: resolving a
// logical service name to a changing set of addresses, and picking one to
// dial.
package registry

// Instance is one running address for a service name.
type Instance struct {
	Addr    string
	Weight  int
	Version string
}

// Registry resolves service names to live instance sets.
type Registry interface {
	Register(serviceName string, instance Instance, ttlSeconds int64) error
	Deregister(serviceName, addr string) error
	Discover(serviceName string) ([]Instance, error)
	Watch(serviceName string) <-chan []Instance
}

// Picker selects one instance from a discovered set.
type Picker interface {
	Pick(instances []Instance) (*Instance, error)
}
