package couch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/tabula-sync/tabula/internal/logger"
)

// DefaultProbeTimeout bounds how long a single probe may hang before it is
// aborted and counted as "network unreachable".
const DefaultProbeTimeout = 8 * time.Second

// Status is a snapshot of the two independent connectivity booleans.
// Online means the transport could dispatch a request at all; Connected
// means the last probe got a successful response from the store.
type Status struct {
	Online    bool `json:"isOnline"`
	Connected bool `json:"isConnected"`
}

// Prober assesses reachability of the store with a bare GET against the
// database endpoint. Browser-reported online/offline events are distrusted
// on purpose; they only ever trigger a re-probe, never a state change.
type Prober struct {
	client  *Client
	timeout time.Duration
	logger  logger.Logger

	mu        sync.Mutex
	online    bool
	connected bool
}

func NewProber(client *Client, timeout time.Duration, log logger.Logger) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{
		client:  client,
		timeout: timeout,
		logger:  log,
		// Assume online until a request proves otherwise.
		online: true,
	}
}

// Check issues one probe and updates the connectivity booleans.
// Returns the new connected state.
func (p *Prober) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err := p.client.Request(ctx, http.MethodGet, "", nil)

	online, connected := classify(err)
	p.mu.Lock()
	p.online = online
	p.connected = connected
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("connection check failed",
			logger.Bool("online", online),
			logger.Error(err))
	} else {
		p.logger.Debug("connection check ok")
	}
	return connected
}

// classify maps a probe outcome onto the two booleans.
//
//	response received (any status)    -> online, connected iff 2xx
//	probe timeout                     -> offline
//	dispatch failure (DNS, refused…)  -> offline
//	anything else                     -> network fine, store erring
func classify(err error) (online, connected bool) {
	switch {
	case err == nil:
		return true, true
	case errors.Is(err, context.DeadlineExceeded):
		return false, false
	case IsTransport(err):
		return false, false
	default:
		// The store answered (non-2xx, bad payload…), so the network is fine.
		return true, false
	}
}

// Online reports transport-level reachability as of the last probe.
func (p *Prober) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Connected reports whether the last probe reached the store successfully.
func (p *Prober) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Status returns both booleans atomically.
func (p *Prober) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{Online: p.online, Connected: p.connected}
}
