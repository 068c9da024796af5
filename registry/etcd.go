package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdRegistry implements Registry on top of etcd v3: a "distributed
// phonebook" keyed /mux2rpc/{serviceName}/{addr}, value JSON-encoded
// Instance. Registration is lease-backed so a crashed server's entries
// expire on their own instead of lingering as ghosts.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger
}

// EtcdOptions configures an EtcdRegistry.
type EtcdOptions struct {
	Endpoints []string
	// Logger receives etcd client diagnostics. clientv3.Config takes a
	// *zap.Logger directly, so this isn't optional plumbing; nil defaults
	// to a no-op logger.
	Logger *zap.Logger
}

// NewEtcdRegistry dials the given etcd endpoints.
func NewEtcdRegistry(opts EtcdOptions) (*EtcdRegistry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := clientv3.New(clientv3.Config{
		Endpoints: opts.Endpoints,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c, logger: logger}, nil
}

func keyFor(serviceName, addr string) string {
	return "/mux2rpc/" + serviceName + "/" + addr
}

// Register stores instance under a TTL lease and keeps it alive in the
// background until the process exits or Deregister is called.
func (r *EtcdRegistry) Register(serviceName string, instance Instance, ttlSeconds int64) error {
	ctx := context.Background()

	lease, err := r.client.Grant(ctx, ttlSeconds)
	if err != nil {
		return err
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyFor(serviceName, instance.Addr), string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes instance's entry ahead of a graceful shutdown.
func (r *EtcdRegistry) Deregister(serviceName, addr string) error {
	_, err := r.client.Delete(context.Background(), keyFor(serviceName, addr))
	return err
}

// Discover lists every live instance currently registered under
// serviceName.
func (r *EtcdRegistry) Discover(serviceName string) ([]Instance, error) {
	resp, err := r.client.Get(context.Background(), "/mux2rpc/"+serviceName+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			r.logger.Warn("skipping malformed registry entry", zap.String("key", string(kv.Key)), zap.Error(err))
			continue
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// Watch streams the full instance list for serviceName on every
// registration change, using etcd's server-push watch rather than
// polling. The channel closes when ctx-less background watch ends (on
// etcd session loss).
func (r *EtcdRegistry) Watch(serviceName string) <-chan []Instance {
	out := make(chan []Instance, 1)
	prefix := "/mux2rpc/" + serviceName + "/"

	go func() {
		defer close(out)
		watchCh := r.client.Watch(context.Background(), prefix, clientv3.WithPrefix())
		for range watchCh {
			instances, err := r.Discover(serviceName)
			if err != nil {
				r.logger.Warn("discover after watch event failed", zap.String("service", serviceName), zap.Error(err))
				continue
			}
			out <- instances
		}
	}()

	return out
}

// Close releases the underlying etcd client connection.
func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
