package config

import (
	"strings"
	"testing"

	"github.com/jpalmerr/boundfetch"
)

func mustParse(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

func TestBuildResources_Single(t *testing.T) {
	cfg := mustParse(t, `
resources:
  - id: https://example.com/a.tar.gz
    name: Archive
    expected_md5: 5D41402ABC4B2A76B9719D911017C592
    labels:
      env: prod
      team: platform
  - id: /var/data/b.json
`)

	resources, err := BuildResources(cfg)
	if err != nil {
		t.Fatalf("BuildResources() error = %v", err)
	}
	if len(resources) != 2 {
		t.Fatalf("len(resources) = %d, want 2", len(resources))
	}

	a := resources[0]
	if a.ID() != "https://example.com/a.tar.gz" || a.Name() != "Archive" {
		t.Errorf("resources[0] = %q/%q", a.ID(), a.Name())
	}
	if a.ExpectedDigest() != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("ExpectedDigest() = %q, want lowercase", a.ExpectedDigest())
	}
	if a.Labels()["team"] != "platform" {
		t.Errorf("Labels() = %v", a.Labels())
	}

	// name defaults to the id
	if resources[1].Name() != "/var/data/b.json" {
		t.Errorf("resources[1].Name() = %q, want the id", resources[1].Name())
	}
}

func TestBuildResources_Set(t *testing.T) {
	cfg := mustParse(t, `
sets:
  - name: Mirror
    id_template: "https://{{.region}}.example.com/{{.channel}}/SUMS"
    dimensions:
      region: [eu, us]
      channel: [stable, beta]
    labels:
      tier: mirror
`)

	resources, err := BuildResources(cfg)
	if err != nil {
		t.Fatalf("BuildResources() error = %v", err)
	}
	if len(resources) != 4 {
		t.Fatalf("len(resources) = %d, want 4", len(resources))
	}

	ids := boundfetch.IDs(resources)
	want := map[string]bool{
		"https://eu.example.com/stable/SUMS": true,
		"https://eu.example.com/beta/SUMS":   true,
		"https://us.example.com/stable/SUMS": true,
		"https://us.example.com/beta/SUMS":   true,
	}
	for _, id := range ids {
		if !want[id] {
			t.Errorf("unexpected id %q", id)
		}
	}
	for _, r := range resources {
		if r.Labels()["tier"] != "mirror" || r.Labels()["region"] == "" {
			t.Errorf("%s labels = %v, want tier and region", r.ID(), r.Labels())
		}
	}
}

func TestBuildResources_MixedOrder(t *testing.T) {
	cfg := mustParse(t, `
resources:
  - id: https://example.com/first
sets:
  - name: Set
    id_template: "https://example.com/{{.n}}"
    dimensions:
      n: [x]
`)

	resources, err := BuildResources(cfg)
	if err != nil {
		t.Fatalf("BuildResources() error = %v", err)
	}
	if got := boundfetch.IDs(resources); len(got) != 2 || got[0] != "https://example.com/first" || got[1] != "https://example.com/x" {
		t.Errorf("IDs = %v, want individual resources before sets", got)
	}
}

func TestBuildResources_Errors(t *testing.T) {
	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name: "duplicate id",
			yaml: `
resources:
  - id: https://example.com/x
sets:
  - name: Set
    id_template: "https://example.com/{{.n}}"
    dimensions:
      n: [x]
`,
			wantErrLike: `duplicate resource id "https://example.com/x"`,
		},
		{
			name: "template references missing dimension",
			yaml: `
sets:
  - name: Broken
    id_template: "https://example.com/{{.missing}}"
    dimensions:
      n: [x]
`,
			wantErrLike: "sets[0] (Broken)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildResources(mustParse(t, tt.yaml))
			if err == nil {
				t.Fatalf("BuildResources() expected error containing %q", tt.wantErrLike)
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("BuildResources() error = %q, want to contain %q", err, tt.wantErrLike)
			}
		})
	}
}

func TestBuildResources_Empty(t *testing.T) {
	resources, err := BuildResources(mustParse(t, `concurrency: 1`))
	if err != nil {
		t.Fatalf("BuildResources() error = %v", err)
	}
	if len(resources) != 0 {
		t.Errorf("len(resources) = %d, want 0", len(resources))
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := mustParse(t, `
policy: rolling
digest_format: upper
timeout: 2s
max_body_size: 4096
headers:
  x-api-key: secret
rate_limit:
  per_second: 50
  burst: 5
`)

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	f, err := boundfetch.New(opts...)
	if err != nil {
		t.Fatalf("boundfetch.New(BuildOptions()) error = %v", err)
	}
	defer f.Close()

	if f.Policy() != boundfetch.PolicyRolling {
		t.Errorf("Policy() = %q, want rolling", f.Policy())
	}
}

func TestBuildOptions_Defaults(t *testing.T) {
	opts, err := BuildOptions(mustParse(t, `concurrency: 1`))
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	// policy, digest format and fail-fast are always set
	if len(opts) != 3 {
		t.Errorf("len(opts) = %d, want 3", len(opts))
	}

	f, err := boundfetch.New(opts...)
	if err != nil {
		t.Fatalf("boundfetch.New() error = %v", err)
	}
	if f.Policy() != boundfetch.PolicyBatch {
		t.Errorf("Policy() = %q, want batch", f.Policy())
	}
}

func TestMapToKeyValuePairs_Sorted(t *testing.T) {
	got := mapToKeyValuePairs(map[string]string{"b": "2", "a": "1", "c": "3"})
	want := []string{"a", "1", "b", "2", "c", "3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("mapToKeyValuePairs() = %v, want %v", got, want)
	}
}
