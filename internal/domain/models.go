package domain

import (
	"strings"
	"time"
)

// Site is a monitored endpoint. Host is its identity.
type Site struct {
	Host                   string    `json:"host" yaml:"host"`
	Name                   string    `json:"name" yaml:"name"`
	NotificationsEnabled   bool      `json:"notifications_enabled" yaml:"notifications_enabled"`
	ForcedCertificateTrust bool      `json:"forced_certificate_trust" yaml:"forced_certificate_trust"`
	InternalFallbackURL    string    `json:"internal_fallback_url,omitempty" yaml:"internal_fallback_url"`
	CreatedAt              time.Time `json:"created_at" yaml:"-"`
}

// DisplayName falls back to the host when no name was given.
func (s Site) DisplayName() string {
	if n := strings.TrimSpace(s.Name); n != "" {
		return n
	}
	return s.Host
}

type SchedulerState struct {
	IntervalMinutes int       `json:"interval_minutes"`
	NextFire        time.Time `json:"next_fire"`
	Scheduled       bool      `json:"scheduled"`
	Suspended       bool      `json:"suspended_on_battery"`
	PowerConnected  bool      `json:"power_connected"`
	LastError       string    `json:"last_error,omitempty"`
}
