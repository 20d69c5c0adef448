package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

func IsConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "econnreset")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func certificateError(err error) (string, bool) {
	var (
		verr     *tls.CertificateVerificationError
		unknown  x509.UnknownAuthorityError
		hostname x509.HostnameError
		invalid  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Err.Error(), true
	case errors.As(err, &unknown):
		return unknown.Error(), true
	case errors.As(err, &hostname):
		return hostname.Error(), true
	case errors.As(err, &invalid):
		return invalid.Error(), true
	}
	return "", false
}

// NormalizeError maps transport errors onto the stored labels. Unknown
// errors keep their cause text without the url.Error wrapping.
func NormalizeError(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := certificateError(err); ok {
		return domain.ErrLabelCertificate + ": " + msg
	}

	var dnsErr *net.DNSError
	switch {
	case isTimeout(err):
		return domain.ErrLabelTimeout
	case errors.As(err, &dnsErr):
		return domain.ErrLabelUnknownHost
	case IsConnectionReset(err):
		return domain.ErrLabelConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return domain.ErrLabelConnectionRefused
	}

	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		err = uerr.Err
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return "unknown_error"
}
