package probe

import (
	"context"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// MaxAttempts bounds network attempts per probe: the original request,
// one retry after a connection reset and one fallback request.
const MaxAttempts = 3

// Probe checks one site. Offline means no attempt at all.
// On I/O failure: a connection reset is retried once against the same URL,
// then the internal fallback URL is tried once when configured. If every
// attempt fails the first error is the one recorded.
func (e *Engine) Probe(ctx context.Context, site domain.Site, connectivityAvailable bool) domain.ProbeResult {
	started := e.now()
	if !connectivityAvailable {
		return domain.ProbeResult{Host: site.Host, Timestamp: started, Outcome: domain.OutcomeNoConnectivity}
	}

	c := e.clientFor(site)
	target := targetURL(site.Host)

	res, firstErr := e.attempt(ctx, c, site.Host, target)
	if firstErr == nil {
		res.Timestamp = started
		return res
	}

	if IsConnectionReset(firstErr) {
		r, err := e.attempt(ctx, c, site.Host, target)
		if err == nil {
			r.Timestamp = started
			return r
		}
	}

	if site.InternalFallbackURL != "" {
		r, err := e.attempt(ctx, c, site.Host, targetURL(site.InternalFallbackURL))
		if err == nil {
			r.Timestamp = started
			return r
		}
	}

	return domain.ProbeResult{
		Host:        site.Host,
		Timestamp:   started,
		Outcome:     domain.OutcomeFail,
		ErrorDetail: NormalizeError(firstErr),
	}
}
