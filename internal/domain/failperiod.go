package domain

// FailPeriod is the trailing run of FAIL results of one site.
type FailPeriod struct {
	Start ProbeResult `json:"start"`
	End   ProbeResult `json:"end"`
}

// LastFailPeriod scans results (oldest first) from the newest entry backward.
// It returns nil when the newest entry is not a FAIL.
func LastFailPeriod(results []ProbeResult) *FailPeriod {
	n := len(results)
	if n == 0 || !results[n-1].IsFail() {
		return nil
	}
	start := n - 1
	for start > 0 && results[start-1].IsFail() {
		start--
	}
	return &FailPeriod{Start: results[start], End: results[n-1]}
}
