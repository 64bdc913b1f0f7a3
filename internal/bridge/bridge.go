// Package bridge implements the HTTP/RTSP Bridge from spec §4.3: it turns
// a tunneled request message into a loopback TCP round-trip against the
// co-located HTTP/HTTPS or RTSP server and produces the reply message.
package bridge

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bitxel/starbeam-agent/internal/metrics"
	"github.com/bitxel/starbeam-agent/internal/sunshine"
)

// Options configures a Bridge. The bridge never hardcodes a local port; it
// always resolves one through PortMapper, per spec §4.3.
type Options struct {
	PortMapper sunshine.PortMapper

	// ForwardTimeout bounds the entire dial+write+read round trip per
	// request (SPEC_FULL.md §4.3.1 — additive, the original has no
	// such bound).
	ForwardTimeout time.Duration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

func (o Options) forwardTimeout() time.Duration {
	if o.ForwardTimeout <= 0 {
		return 10 * time.Second
	}
	return o.ForwardTimeout
}

func (o Options) portMapper() sunshine.PortMapper {
	if o.PortMapper == nil {
		return sunshine.IdentityPortMapper
	}
	return o.PortMapper
}

// Bridge forwards tunneled HTTP/RTSP requests onto loopback TCP
// connections to the co-located streaming server.
type Bridge struct {
	opts Options
}

// New constructs a Bridge.
func New(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Bridge{opts: opts}
}

const internalServerError = "Internal Server Error"
