package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	name := flag.String("name", "", "display name (defaults to the host)")
	fallback := flag.String("fallback", "", "internal fallback URL tried when the host is unreachable")
	trust := flag.Bool("trust-cert", false, "accept any TLS certificate for this site")
	quiet := flag.Bool("no-notify", false, "never alert for this site")
	flag.Parse()

	host := strings.TrimSpace(flag.Arg(0))
	if host == "" {
		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Enter a host to monitor (e.g., example.com): ")
		raw, _ := reader.ReadString('\n')
		host = strings.TrimSpace(raw)
	}
	if host == "" {
		fmt.Println("No host given.")
		os.Exit(2)
	}

	body, _ := json.Marshal(map[string]any{
		"host":                     host,
		"name":                     *name,
		"notifications_enabled":    !*quiet,
		"forced_certificate_trust": *trust,
		"internal_fallback_url":    *fallback,
	})
	req, _ := http.NewRequest(http.MethodPost, api+"/api/sites", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if k := os.Getenv("ADMIN_API_KEY"); k != "" {
		req.Header.Set("X-API-Key", k)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out struct {
			Scheduler struct {
				NextFire time.Time `json:"next_fire"`
			} `json:"scheduler"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		fmt.Println("Added!", host)
		if !out.Scheduler.NextFire.IsZero() {
			fmt.Println("Next check:", out.Scheduler.NextFire.Local().Format(time.RFC1123))
		}
	case resp.StatusCode == http.StatusConflict:
		fmt.Println("Already monitored:", host)
	default:
		fmt.Println("API returned status:", resp.Status)
		os.Exit(1)
	}
}
