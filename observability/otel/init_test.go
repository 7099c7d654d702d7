package otel

import (
	"context"
	"testing"
)

func TestConfigEnabled(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
		want bool
	}{
		{name: "nothing requested", cfg: Config{Endpoint: "collector:4318"}, want: false},
		{name: "traces on default endpoint", cfg: Config{Traces: true}, want: true},
		{name: "metrics", cfg: Config{Endpoint: "collector:4318", Metrics: true}, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.Enabled(); got != tc.want {
				t.Fatalf("Enabled() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{Traces: true}); err == nil {
		t.Fatal("expected error without service name")
	}
}
