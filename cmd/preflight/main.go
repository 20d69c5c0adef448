// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))
	apiAddr := strings.TrimSpace(os.Getenv("API_ADDR"))
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	allowed := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS"))
	slack := strings.TrimSpace(os.Getenv("SLACK_WEBHOOK_URL"))
	purge := strings.TrimSpace(os.Getenv("PURGE_SCHEDULE"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (admin routes are open to anyone).")
	}
	if pub == "" {
		warn("PUBLIC_API_KEYS is empty; read routes accept admin keys only.")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	if apiAddr == "" {
		warn("API_ADDR is empty; 127.0.0.1:8080 will be used.")
	} else {
		ok("API_ADDR=" + apiAddr)
	}

	switch {
	case db != "":
		ok("DATABASE_URL present (postgres store)")
	case sqlitePath != "":
		ok("SQLITE_PATH=" + sqlitePath)
	default:
		warn("DATABASE_URL and SQLITE_PATH empty — history and schedule are lost on restart.")
	}
	if redisURL != "" {
		if _, err := url.Parse(redisURL); err != nil {
			fail("REDIS_URL is not a URL: " + err.Error())
		} else {
			ok("REDIS_URL present (scheduler state in redis)")
		}
	}

	for _, name := range []string{"INTERVAL_MINUTES", "MAX_CONCURRENT_PROBES", "RETENTION_DAYS"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if n, err := strconv.Atoi(v); err != nil || n < 0 {
				warn(name + "=" + v + " is not a valid number; the default will be used.")
			}
		}
	}
	if purge != "" {
		if _, err := cron.ParseStandard(purge); err != nil {
			fail("PURGE_SCHEDULE is invalid: " + err.Error())
		} else {
			ok("PURGE_SCHEDULE=" + purge)
		}
	}

	if slack == "" {
		warn("SLACK_WEBHOOK_URL empty — alerts only go to the log.")
	} else if u, err := url.Parse(slack); err != nil || u.Scheme != "https" {
		fail("SLACK_WEBHOOK_URL must be an https URL.")
	} else {
		ok("SLACK_WEBHOOK_URL present")
	}

	if allowed == "" {
		warn("ALLOWED_ORIGINS empty — every origin is allowed by CORS.")
	} else {
		ok("ALLOWED_ORIGINS=" + allowed)
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
