// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianAssist/services/assistant/datatypes"
	"github.com/AleutianAI/AleutianAssist/services/assistant/tools"
)

// defaultToolNames are the tools wired when the config names no adapters.
var defaultToolNames = []string{"email", "calendar", "tasks", "notion"}

// buildToolSet wires one tool per configured adapter URL and an echo stub
// for every default tool left unconfigured. The stubs keep a fresh install
// responsive end to end; they just say what they would have done.
func buildToolSet(logger *slog.Logger) *tools.Set {
	seen := make(map[string]bool)
	var ts []tools.Tool
	for name, url := range config.Tools {
		ts = append(ts, newProxyTool(name, url))
		seen[name] = true
		logger.Info("registered tool adapter", slog.String("tool", name), slog.String("url", url))
	}
	for _, name := range defaultToolNames {
		if !seen[name] {
			ts = append(ts, echoTool{name: name})
		}
	}
	return tools.NewSet(ts...)
}

// proxyTool forwards tool calls to an external adapter service.
type proxyTool struct {
	name   string
	url    string
	client *http.Client
}

func newProxyTool(name, url string) *proxyTool {
	return &proxyTool{name: name, url: url, client: &http.Client{Timeout: 25 * time.Second}}
}

func (p *proxyTool) Name() string { return p.name }

func (p *proxyTool) Run(ctx context.Context, action datatypes.Action, query string, params map[string]any) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"action": action,
		"query":  query,
		"params": params,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/execute", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling %s adapter: %w", p.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s adapter returned %d: %s", p.name, resp.StatusCode, body)
	}
	var out struct {
		Result string `json:"result"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding %s adapter response: %w", p.name, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%s adapter: %s", p.name, out.Error)
	}
	return out.Result, nil
}

// echoTool is the no-backend placeholder.
type echoTool struct {
	name string
}

func (e echoTool) Name() string { return e.name }

func (e echoTool) Run(_ context.Context, action datatypes.Action, query string, _ map[string]any) (string, error) {
	return fmt.Sprintf("[%s] would %s: %s (no adapter configured)", e.name, action, query), nil
}
