package probe

import (
	"context"
	"net/http"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// Doer is the transport seam; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Prober performs one reachability check for one site.
type Prober interface {
	Probe(ctx context.Context, site domain.Site, connectivityAvailable bool) domain.ProbeResult
}
