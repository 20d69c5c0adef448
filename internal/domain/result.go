package domain

import (
	"strings"
	"time"
)

type Outcome string

const (
	OutcomeSuccess        Outcome = "SUCCESS"
	OutcomeFail           Outcome = "FAIL"
	OutcomeNoConnectivity Outcome = "NO_CONNECTIVITY"
)

// Normalized error labels stored in ProbeResult.ErrorDetail.
const (
	ErrLabelTimeout           = "timeout"
	ErrLabelConnectionReset   = "connection_reset"
	ErrLabelConnectionRefused = "connection_refused"
	ErrLabelUnknownHost       = "unknown_host"
	ErrLabelCertificate       = "certificate_error"
)

// ProbeResult is one stored call. It is never modified after append.
type ProbeResult struct {
	ID          int64     `json:"id"`
	Host        string    `json:"host"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     Outcome   `json:"outcome"`
	HTTPStatus  *int      `json:"http_status,omitempty"`  // only for completed exchanges
	ElapsedMS   *int64    `json:"elapsed_ms,omitempty"`   // only for completed exchanges
	ErrorDetail string    `json:"error_detail,omitempty"` // normalized label or raw cause
}

func (r ProbeResult) IsFail() bool    { return r.Outcome == OutcomeFail }
func (r ProbeResult) IsSuccess() bool { return r.Outcome == OutcomeSuccess }

// Conclusive reports whether the result says anything about the site itself.
// NO_CONNECTIVITY entries only describe the monitoring host.
func (r ProbeResult) Conclusive() bool {
	return r.Outcome == OutcomeSuccess || r.Outcome == OutcomeFail
}

// IsCertificateError flags failures that forced certificate trust might fix.
func (r ProbeResult) IsCertificateError() bool {
	return r.IsFail() && strings.HasPrefix(r.ErrorDetail, ErrLabelCertificate)
}

// IsConnectFailure flags failures where no TCP session was established.
func (r ProbeResult) IsConnectFailure() bool {
	if !r.IsFail() {
		return false
	}
	switch r.ErrorDetail {
	case ErrLabelConnectionRefused, ErrLabelUnknownHost, ErrLabelTimeout:
		return true
	}
	return false
}
