package probe

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

// scriptedDoer replays one step per call and records every request URL.
type scriptedDoer struct {
	mu     sync.Mutex
	steps  []func(*http.Request) (*http.Response, error)
	calls  []string
	closed int
}

type countingBody struct {
	io.Reader
	d *scriptedDoer
}

func (b countingBody) Close() error {
	b.d.mu.Lock()
	b.d.closed++
	b.d.mu.Unlock()
	return nil
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.mu.Lock()
	i := len(d.calls)
	d.calls = append(d.calls, req.URL.String())
	d.mu.Unlock()
	if i >= len(d.steps) {
		return nil, errors.New("unexpected call")
	}
	return d.steps[i](req)
}

func (d *scriptedDoer) respond(code int) func(*http.Request) (*http.Response, error) {
	return func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Status:     http.StatusText(code),
			Body:       countingBody{Reader: strings.NewReader(""), d: d},
		}, nil
	}
}

func fail(err error) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return nil, &url.Error{Op: "Head", URL: req.URL.String(), Err: err}
	}
}

func resetErr() error {
	return &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
}

func refusedErr() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

func engineWith(d Doer) *Engine {
	return &Engine{Client: d, Insecure: d, UserAgent: DefaultUserAgent}
}

func TestProbe_OfflineMakesNoAttempts(t *testing.T) {
	d := &scriptedDoer{}
	out := engineWith(d).Probe(context.Background(), domain.Site{Host: "example.com"}, false)
	if out.Outcome != domain.OutcomeNoConnectivity {
		t.Fatalf("want NO_CONNECTIVITY, got %+v", out)
	}
	if len(d.calls) != 0 {
		t.Fatalf("want zero attempts, got %d", len(d.calls))
	}
	if out.HTTPStatus != nil || out.ElapsedMS != nil {
		t.Fatalf("no exchange happened, fields must be empty: %+v", out)
	}
}

func TestProbe_ResetThenSuccess(t *testing.T) {
	d := &scriptedDoer{}
	d.steps = append(d.steps, fail(resetErr()), d.respond(200))

	out := engineWith(d).Probe(context.Background(), domain.Site{Host: "example.com"}, true)
	if out.Outcome != domain.OutcomeSuccess {
		t.Fatalf("want SUCCESS, got %+v", out)
	}
	if len(d.calls) != 2 {
		t.Fatalf("want 2 attempts, got %d", len(d.calls))
	}
	if d.calls[0] != "http://example.com" || d.calls[1] != "http://example.com" {
		t.Fatalf("retry must hit the same URL: %v", d.calls)
	}
	if d.closed != 1 {
		t.Fatalf("response body not closed: %d", d.closed)
	}
}

func TestProbe_ResetTwiceThenFallback(t *testing.T) {
	d := &scriptedDoer{}
	d.steps = append(d.steps, fail(resetErr()), fail(resetErr()), d.respond(200))

	site := domain.Site{Host: "example.com", InternalFallbackURL: "http://10.0.0.7/health"}
	out := engineWith(d).Probe(context.Background(), site, true)
	if out.Outcome != domain.OutcomeSuccess {
		t.Fatalf("fallback success should be kept, got %+v", out)
	}
	if len(d.calls) != 3 || d.calls[2] != "http://10.0.0.7/health" {
		t.Fatalf("unexpected calls: %v", d.calls)
	}
}

func TestProbe_NonResetGoesStraightToFallback(t *testing.T) {
	d := &scriptedDoer{}
	d.steps = append(d.steps, fail(refusedErr()), fail(errors.New("no route to host")))

	site := domain.Site{Host: "example.com", InternalFallbackURL: "10.0.0.7"}
	out := engineWith(d).Probe(context.Background(), site, true)
	if out.Outcome != domain.OutcomeFail {
		t.Fatalf("want FAIL, got %+v", out)
	}
	if len(d.calls) != 2 || d.calls[1] != "http://10.0.0.7" {
		t.Fatalf("unexpected calls: %v", d.calls)
	}
	if out.ErrorDetail != domain.ErrLabelConnectionRefused {
		t.Fatalf("first error must be recorded, got %q", out.ErrorDetail)
	}
}

func TestProbe_NoFallbackRecordsOriginalError(t *testing.T) {
	d := &scriptedDoer{}
	d.steps = append(d.steps, fail(resetErr()), fail(refusedErr()))

	out := engineWith(d).Probe(context.Background(), domain.Site{Host: "example.com"}, true)
	if out.Outcome != domain.OutcomeFail || out.ErrorDetail != domain.ErrLabelConnectionReset {
		t.Fatalf("want FAIL/connection_reset, got %+v", out)
	}
	if len(d.calls) != 2 {
		t.Fatalf("want 2 attempts, got %d", len(d.calls))
	}
}

func TestProbe_ForcedTrustUsesInsecureClient(t *testing.T) {
	strict := &scriptedDoer{}
	loose := &scriptedDoer{}
	loose.steps = append(loose.steps, loose.respond(200))

	e := &Engine{Client: strict, Insecure: loose, UserAgent: DefaultUserAgent}
	out := e.Probe(context.Background(), domain.Site{Host: "https://self-signed.test", ForcedCertificateTrust: true}, true)
	if out.Outcome != domain.OutcomeSuccess || len(strict.calls) != 0 || len(loose.calls) != 1 {
		t.Fatalf("forced trust must only use the insecure client: %+v strict=%d loose=%d", out, len(strict.calls), len(loose.calls))
	}
}

func TestProbe_AttemptBoundOverRandomFailures(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		d := &scriptedDoer{}
		for j := 0; j < 5; j++ {
			switch rng.Intn(4) {
			case 0:
				d.steps = append(d.steps, fail(resetErr()))
			case 1:
				d.steps = append(d.steps, fail(refusedErr()))
			case 2:
				d.steps = append(d.steps, fail(context.DeadlineExceeded))
			default:
				d.steps = append(d.steps, d.respond(200+rng.Intn(400)))
			}
		}
		site := domain.Site{Host: "example.com"}
		if rng.Intn(2) == 0 {
			site.InternalFallbackURL = "http://10.1.1.1"
		}
		engineWith(d).Probe(context.Background(), site, true)
		if len(d.calls) > MaxAttempts {
			t.Fatalf("iteration %d: %d attempts", i, len(d.calls))
		}
	}
}

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", &url.Error{Op: "Head", URL: "x", Err: context.DeadlineExceeded}, domain.ErrLabelTimeout},
		{"dns", &url.Error{Op: "Head", URL: "x", Err: &net.OpError{Op: "dial", Err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}}, domain.ErrLabelUnknownHost},
		{"reset", &url.Error{Op: "Head", URL: "x", Err: resetErr()}, domain.ErrLabelConnectionReset},
		{"reset text", errors.New("read: recvfrom failed: ECONNRESET (Connection reset by peer)"), domain.ErrLabelConnectionReset},
		{"refused", &url.Error{Op: "Head", URL: "x", Err: refusedErr()}, domain.ErrLabelConnectionRefused},
		{"other", &url.Error{Op: "Head", URL: "x", Err: errors.New("weird")}, "weird"},
	}
	for _, c := range cases {
		if got := NormalizeError(c.err); got != c.want {
			t.Fatalf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}
