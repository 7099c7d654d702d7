package logging

import (
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked by the handler whatever the call site passes.
var sensitiveKeys = map[string]struct{}{
	"passphrase":  {},
	"password":    {},
	"private_key": {},
	"key":         {},
	"seed":        {},
	"mnemonic":    {},
	"signature":   {},
	"raw_tx":      {},
}

// IsSensitive reports whether values logged under key are always masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// SensitiveKeys returns the masked keys, sorted.
func SensitiveKeys() []string {
	keys := make([]string, 0, len(sensitiveKeys))
	for key := range sensitiveKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskURL keeps the scheme and host of an endpoint. Hosted RPC providers embed API
// keys in the path, query or user info, so everything else is dropped.
func MaskURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return RedactedValue
	}
	masked := parsed.Scheme + "://" + parsed.Host
	if parsed.User != nil || (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" {
		masked += "/" + RedactedValue
	}
	return masked
}

// MaskField returns an attribute for value under key. Sensitive keys are masked, keys
// ending in _url keep only their origin, and anything else passes through.
func MaskField(key, value string) slog.Attr {
	switch {
	case strings.TrimSpace(value) == "":
		return slog.String(key, value)
	case IsSensitive(key):
		return slog.String(key, RedactedValue)
	case strings.HasSuffix(strings.ToLower(key), "_url"):
		return slog.String(key, MaskURL(value))
	default:
		return slog.String(key, value)
	}
}

// redactAttr is installed as part of the handler's ReplaceAttr.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString {
		if IsSensitive(attr.Key) {
			return slog.String(attr.Key, RedactedValue)
		}
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}
