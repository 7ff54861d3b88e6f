package waclient

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"
)

// CheckNetwork probes DNS resolution of the messaging host. A failure means
// the messaging network is unreachable and initialization should not start.
func CheckNetwork(ctx context.Context, host string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	addrs, err := resolver.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("dns lookup for %s failed: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("dns lookup for %s returned no addresses", host)
	}
	return nil
}

// HeapInUse returns the current process heap usage in bytes, used by the
// pre-flight memory headroom warning.
func HeapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}
