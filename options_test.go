package boundfetch

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/boundfetch/internal/transport/transporttest"
)

func TestNew_Defaults(t *testing.T) {
	f, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer f.Close()

	if f.Policy() != PolicyBatch {
		t.Errorf("Policy() = %q, want %q", f.Policy(), PolicyBatch)
	}
	if f.format != DigestLower {
		t.Errorf("digest format = %q, want %q", f.format, DigestLower)
	}
	if f.mux == nil {
		t.Error("default Fetcher should use the scheme-routing transport")
	}
	if f.metrics != nil {
		t.Error("metrics should be disabled without WithRegisterer")
	}
}

func TestNew_OptionErrors(t *testing.T) {
	tests := []struct {
		name    string
		opt     Option
		wantErr string
	}{
		{name: "nil transport", opt: WithTransport(nil), wantErr: "transport cannot be nil"},
		{name: "nil logger", opt: WithLogger(nil), wantErr: "logger cannot be nil"},
		{name: "unknown policy", opt: WithDrainPolicy("greedy"), wantErr: "unknown drain policy"},
		{name: "negative timeout", opt: WithTimeout(-time.Second), wantErr: "timeout cannot be negative"},
		{name: "zero body size", opt: WithMaxBodySize(0), wantErr: "max body size must be positive"},
		{name: "odd headers", opt: WithHeaders("X-Only"), wantErr: "even number"},
		{name: "empty header name", opt: WithHeaders("", "v"), wantErr: "header name cannot be empty"},
		{name: "zero rate", opt: WithRateLimit(0, 1), wantErr: "rate limit must be positive"},
		{name: "zero burst", opt: WithRateLimit(5, 0), wantErr: "burst must be at least 1"},
		{name: "nil registerer", opt: WithRegisterer(nil), wantErr: "registerer cannot be nil"},
		{name: "nil tracer provider", opt: WithTracerProvider(nil), wantErr: "tracer provider cannot be nil"},
		{name: "unknown digest format", opt: WithDigestFormat("base64"), wantErr: "unknown digest format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			if err == nil {
				t.Fatal("New() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %q, want to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestNew_TransportConflicts(t *testing.T) {
	fake := transporttest.NewFake()

	if _, err := New(WithTransport(fake), WithHeaders("X-A", "1")); err == nil {
		t.Error("New() should reject WithHeaders combined with WithTransport")
	}
	if _, err := New(WithMaxBodySize(1024), WithTransport(fake)); err == nil {
		t.Error("New() should reject WithMaxBodySize combined with WithTransport")
	}
}

func TestWithHeaders_Canonicalised(t *testing.T) {
	cfg := &fetcherConfig{}
	if err := WithHeaders("x-api-key", "secret", "accept", "text/plain")(cfg); err != nil {
		t.Fatalf("WithHeaders() error = %v", err)
	}
	if cfg.headers["X-Api-Key"] != "secret" || cfg.headers["Accept"] != "text/plain" {
		t.Errorf("headers = %v, want canonical keys", cfg.headers)
	}
}

func TestWithDrainPolicy(t *testing.T) {
	for _, p := range allPolicies {
		f, err := New(WithDrainPolicy(p))
		if err != nil {
			t.Fatalf("New(WithDrainPolicy(%q)) error = %v", p, err)
		}
		if f.Policy() != p {
			t.Errorf("Policy() = %q, want %q", f.Policy(), p)
		}
	}
}

func TestParseDrainPolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    DrainPolicy
		wantErr bool
	}{
		{input: "", want: PolicyBatch},
		{input: "batch", want: PolicyBatch},
		{input: "Rolling", want: PolicyRolling},
		{input: " pool ", want: PolicyPool},
		{input: "fifo", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseDrainPolicy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDrainPolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDrainPolicy(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWithLogger_Used(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	fake := transporttest.NewFake().Set("A", "a", 0)
	f, err := New(WithTransport(fake), WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := f.FetchAllBounded(context.Background(), []string{"A"}, 1); err != nil {
		t.Fatalf("FetchAllBounded() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "fetch completed") || !strings.Contains(out, "resource=A") {
		t.Errorf("log output = %q, want fetch completed for A", out)
	}
}

func TestWithRegisterer_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(WithRegisterer(reg)); err != nil {
		t.Fatalf("first New() error = %v", err)
	}
	if _, err := New(WithRegisterer(reg)); err != nil {
		t.Fatalf("second New() on the same registry error = %v", err)
	}
}
