// Package identity builds the host identity sent at registration and the
// process-stable unique_id described in spec §3.
package identity

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bitxel/starbeam-agent/internal/protocol"
)

// nonceSource produces the monotonic-ish numeric nonce appended to the
// hostname. It is seeded from the wall clock once per process and then
// only ever increases, so two agents started in the same nanosecond still
// get distinct unique_ids within a process lifetime.
var nonceSource atomic.Int64

func init() {
	nonceSource.Store(time.Now().UnixNano())
}

// NewUniqueID derives the process-stable unique_id: hostname + "_" +
// nonce. It must be called at most once per process for a given identity;
// callers should cache the result (spec: "immutable after construction").
func NewUniqueID(hostname string) string {
	nonce := nonceSource.Add(1)
	return fmt.Sprintf("%s_%d", hostname, nonce)
}

// Host is the identity sent in a Register message.
type Host struct {
	Hostname     string
	UniqueID     string
	AuthKey      string
	HostID       string
	Capabilities protocol.Capabilities
}

// DefaultCapabilities returns the codec lists documented in spec §3 when a
// deployment does not configure its own.
func DefaultCapabilities() protocol.Capabilities {
	return protocol.Capabilities{
		VideoCodecs: []string{"H264", "HEVC", "AV1"},
		AudioCodecs: []string{"opus"},
	}
}

// Register builds the outbound Register message for this identity.
func (h Host) Register() protocol.Register {
	return protocol.Register{
		Type:         protocol.TypeRegister,
		Hostname:     h.Hostname,
		UniqueID:     h.UniqueID,
		AuthKey:      h.AuthKey,
		HostID:       h.HostID,
		Capabilities: h.Capabilities,
	}
}
