package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce registers c with the default registry and returns it. When an
// equivalent collector was registered before, for instance by a second vault
// or ledger in the same process, that one is returned instead so that both
// report into the same series. Any other registration failure panics.
func registerOnce[C prometheus.Collector](c C) C {
	err := prometheus.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing
		}
	}
	panic(err)
}
