// healthcheck calls the iamkeycheck server's /health endpoint from inside
// its container and exits 0 only when the server reports {"status": "ok"}.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	defaultAddr  = "127.0.0.1:8000"
	requestTimeout = 2 * time.Second
	// maxBody bounds how much of the response is read.
	maxBody = 4 << 10
)

func main() {
	if err := checkHealth(os.Getenv("IAMKEYCHECK_LISTEN_ADDR")); err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
}

// checkHealth fetches /health on the loopback form of listenAddr and checks the
// reported status.
func checkHealth(listenAddr string) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	target := url.URL{Scheme: "http", Host: dialAddr(listenAddr), Path: "/health"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", target.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", target.String(), resp.StatusCode)
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if body.Status != "ok" {
		return fmt.Errorf("server reported status %q", body.Status)
	}

	return nil
}

// dialAddr turns the server's bind address into one the check can dial.
// Wildcard binds map to the loopback address of the same family; IPv6 hosts
// come back bracketed.
func dialAddr(listenAddr string) string {
	if listenAddr == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil || port == "" {
		return defaultAddr
	}

	switch ip := net.ParseIP(host); {
	case host == "":
		host = "127.0.0.1"
	case ip != nil && ip.IsUnspecified() && ip.To4() == nil:
		host = "::1"
	case ip != nil && ip.IsUnspecified():
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
