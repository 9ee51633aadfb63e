// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponentField(t *testing.T) {
	var buf bytes.Buffer
	testLogger := zerolog.New(&buf)
	base = testLogger // Override global for this test

	logger := WithComponent("assets")
	logger.Info().Str(FieldEvent, "assets.fetch.ok").Msg("fetched")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	if entry["component"] != "assets" {
		t.Errorf("expected component=assets, got %v", entry["component"])
	}
	if entry["event"] != "assets.fetch.ok" {
		t.Errorf("expected event field, got %v", entry["event"])
	}

	Configure(Config{})
}

func TestConfigureIdempotent(t *testing.T) {
	// Configure runs once; subsequent calls must not panic or reset state.
	Configure(Config{Level: "debug"})
	Configure(Config{Level: "error"})
	l := Base()
	if l.GetLevel() > zerolog.PanicLevel {
		t.Error("expected a usable base logger after repeated Configure calls")
	}
}
