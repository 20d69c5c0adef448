package probe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

const (
	DefaultUserAgent      = "bot-site-monitor"
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 10 * time.Second
)

type Options struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Engine issues HEAD requests with the retry policy in retry.go.
// Client verifies certificates; Insecure is only used for sites that
// opted into forced certificate trust.
type Engine struct {
	Client    Doer
	Insecure  Doer
	UserAgent string
	Now       func() time.Time
}

func NewEngine(opt Options) *Engine {
	if opt.UserAgent == "" {
		opt.UserAgent = DefaultUserAgent
	}
	if opt.ConnectTimeout <= 0 {
		opt.ConnectTimeout = DefaultConnectTimeout
	}
	if opt.ReadTimeout <= 0 {
		opt.ReadTimeout = DefaultReadTimeout
	}
	return &Engine{
		Client:    newClient(opt, false),
		Insecure:  newClient(opt, true),
		UserAgent: opt.UserAgent,
		Now:       time.Now,
	}
}

func newClient(opt Options, insecure bool) *http.Client {
	dialer := &net.Dialer{Timeout: opt.ConnectTimeout}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   opt.ConnectTimeout,
		ResponseHeaderTimeout: opt.ReadTimeout,
		DisableKeepAlives:     true,
	}
	if insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // per-site opt-in
	}
	// default CheckRedirect follows up to 10 redirects
	return &http.Client{Transport: tr}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) clientFor(site domain.Site) Doer {
	if site.ForcedCertificateTrust && e.Insecure != nil {
		return e.Insecure
	}
	return e.Client
}

// targetURL prefixes http:// when the host carries no scheme.
func targetURL(host string) string {
	h := strings.TrimSpace(host)
	if strings.Contains(h, "://") {
		return h
	}
	return "http://" + h
}

// attempt runs one HEAD request. err is non-nil only for I/O failures;
// any completed exchange is returned as a result.
func (e *Engine) attempt(ctx context.Context, c Doer, host, target string) (domain.ProbeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return domain.ProbeResult{}, err
	}
	req.Close = true
	req.Header.Set("User-Agent", e.UserAgent)
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	start := e.now()
	resp, err := c.Do(req)
	if err != nil {
		return domain.ProbeResult{}, err
	}
	defer resp.Body.Close()
	elapsed := e.now().Sub(start).Milliseconds()

	status := resp.StatusCode
	out := domain.ProbeResult{
		Host:       host,
		Outcome:    domain.OutcomeFail,
		HTTPStatus: &status,
		ElapsedMS:  &elapsed,
	}
	if status == http.StatusOK {
		out.Outcome = domain.OutcomeSuccess
	} else {
		out.ErrorDetail = resp.Status
	}
	return out, nil
}
