// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	webhookSchemes = []string{"http", "https"}
	natsSchemes    = []string{"nats", "tls", "ws", "wss"}
	mqttSchemes    = []string{"tcp", "mqtt", "ssl", "tls", "ws", "wss"}
)

// validateWebhookURL accepts any http(s) URL with a host. Path and query
// are kept since ntfy topics and Gotify tokens live there.
func validateWebhookURL(rawURL string) error {
	return validateEndpoint(rawURL, webhookSchemes, "https://ntfy.example.net/homevault")
}

// validateNATSURL accepts a single NATS server URL
func validateNATSURL(rawURL string) error {
	return validateEndpoint(rawURL, natsSchemes, "nats://localhost:4222")
}

// validateMQTTBroker accepts a paho broker URL
func validateMQTTBroker(rawURL string) error {
	return validateEndpoint(rawURL, mqttSchemes, "tcp://homeassistant.local:1883")
}

func validateEndpoint(rawURL string, schemes []string, example string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return fmt.Errorf("scheme must be one of %s, got: %q", strings.Join(schemes, ", "), u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required (e.g., %s)", example)
	}
	return nil
}
