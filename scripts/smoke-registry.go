//go:build ignore

// smoke-registry.go exercises a running registry instance end to end:
// health, metrics, and the seeded share link from cmd/seed.
//
// Run with: go run scripts/smoke-registry.go [base-url]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const seededShareID = "share_seed0000000000000000000000"

type check struct {
	name string
	run  func(client *http.Client, base string) error
}

var checks = []check{
	{"healthz", func(client *http.Client, base string) error {
		resp, err := client.Get(base + "/healthz")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		return nil
	}},
	{"metrics", func(client *http.Client, base string) error {
		resp, err := client.Get(base + "/metrics")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if !strings.Contains(string(body), "credanchor_requests_total") {
			return fmt.Errorf("credanchor_requests_total not exported")
		}
		return nil
	}},
	{"seeded share link", func(client *http.Client, base string) error {
		resp, err := client.Post(
			base+"/api/v1/shares/"+seededShareID+"/access",
			"application/json",
			bytes.NewReader(nil),
		)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("status %d: %s (did cmd/seed run?)", resp.StatusCode, body)
		}

		var out struct {
			Credential struct {
				Title string `json:"title"`
				TxRef string `json:"tx_ref"`
			} `json:"credential"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if out.Credential.TxRef == "" {
			return fmt.Errorf("snapshot has no tx ref")
		}
		return nil
	}},
}

func main() {
	base := "http://localhost:8080"
	if len(os.Args) > 1 {
		base = strings.TrimRight(os.Args[1], "/")
	}

	client := &http.Client{Timeout: 8 * time.Second}

	fmt.Printf("smoke checks against %s\n\n", base)
	failed := 0
	for _, c := range checks {
		start := time.Now()
		err := c.run(client, base)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			failed++
			fmt.Printf("  FAIL  %-20s %4dms  %v\n", c.name, latency, err)
			continue
		}
		fmt.Printf("  ok    %-20s %4dms\n", c.name, latency)
	}

	fmt.Println()
	if failed > 0 {
		fmt.Printf("%d/%d checks failed\n", failed, len(checks))
		os.Exit(1)
	}
	fmt.Printf("all %d checks passed\n", len(checks))
}
