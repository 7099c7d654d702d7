package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupRedactsSensitiveValues(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, closer := SetupWithOptions("blockcoop", "test", Options{Level: "debug", Output: buf})
	defer closer.Close()

	secret := "correct horse battery staple"
	logger.Debug("unlocking keystore",
		slog.String("passphrase", secret),
		MaskField("rpc_url", "https://mainnet.example.io/v3/abc123"),
		slog.String("account", "0x00000000000000000000000000000000000000aa"))

	raw := buf.Bytes()
	if bytes.Contains(raw, []byte(secret)) || bytes.Contains(raw, []byte("abc123")) {
		t.Fatalf("log output leaked a secret: %s", raw)
	}
	var entry map[string]any
	if err := json.Unmarshal(raw, &entry); err != nil {
		t.Fatalf("failed to decode log payload: %v", err)
	}
	if entry["passphrase"] != RedactedValue {
		t.Fatalf("expected redacted passphrase, got %v", entry["passphrase"])
	}
	if entry["rpc_url"] != "https://mainnet.example.io/"+RedactedValue {
		t.Fatalf("unexpected rpc_url %v", entry["rpc_url"])
	}
	if entry["account"] != "0x00000000000000000000000000000000000000aa" {
		t.Fatalf("account should pass through, got %v", entry["account"])
	}
	if entry["severity"] != "DEBUG" || entry["service"] != "blockcoop" || entry["env"] != "test" {
		t.Fatalf("unexpected envelope %v", entry)
	}
}

func TestSetupHonoursLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, closer := SetupWithOptions("blockcoop", "", Options{Level: "warn", Output: buf})
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestMaskURL(t *testing.T) {
	cases := map[string]string{
		"":                             "",
		"http://127.0.0.1:8545":        "http://127.0.0.1:8545",
		"wss://user:pw@node.example":   "wss://node.example/" + RedactedValue,
		"https://rpc.example?apikey=1": "https://rpc.example/" + RedactedValue,
		"not a url":                    RedactedValue,
	}
	for in, want := range cases {
		if got := MaskURL(in); got != want {
			t.Errorf("MaskURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSensitiveKeysAreMasked(t *testing.T) {
	for _, key := range SensitiveKeys() {
		if attr := MaskField(strings.ToUpper(key), "value"); attr.Value.String() != RedactedValue {
			t.Errorf("%s leaked through MaskField", key)
		}
	}
	if ParseLevel("warning") != slog.LevelWarn || ParseLevel("") != slog.LevelInfo {
		t.Fatal("unexpected level mapping")
	}
}
