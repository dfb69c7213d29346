package schema

import (
	"errors"
	"testing"
)

func TestNormalizeServerName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ServerName
		wantErr bool
	}{
		{name: "simple", input: "foo", want: "foo"},
		{name: "dotted", input: "search.v2", want: "search.v2"},
		{name: "trimmed", input: "  foo  ", want: "foo"},
		{name: "dashes and underscores", input: "my_server-01", want: "my_server-01"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "inner space", input: "bad name", wantErr: true},
		{name: "slash", input: "foo/bar", wantErr: true},
		{name: "bang", input: "foo!", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeServerName(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidServer) {
					t.Fatalf("NormalizeServerName(%q) err = %v, want ErrInvalidServer", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeServerName(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeServerName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeCommandName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    CommandName
		wantErr bool
	}{
		{name: "dotted", input: "tool.call", want: "tool.call"},
		{name: "namespaced", input: "tools/search:run", want: "tools/search:run"},
		{name: "builtin start", input: "mcp-server.start", want: "mcp-server.start"},
		{name: "empty", input: "", wantErr: true},
		{name: "space", input: "tool call", wantErr: true},
		{name: "brace", input: "tool{call}", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeCommandName(tc.input)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Fatalf("NormalizeCommandName(%q) err = %v, want ErrInvalidCommand", tc.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeCommandName(%q): %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("NormalizeCommandName(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNormalizeLifecycleMode(t *testing.T) {
	tests := []struct {
		input   string
		want    LifecycleMode
		wantErr bool
	}{
		{input: "per-dialog", want: ModePerDialog},
		{input: "Per-Invocation", want: ModePerInvocation},
		{input: " persistent ", want: ModePersistent},
		{input: "existing-instance", want: ModeExistingInstance},
		{input: "forever", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := NormalizeLifecycleMode(tc.input)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidLifecycleMode) {
				t.Fatalf("NormalizeLifecycleMode(%q) err = %v, want ErrInvalidLifecycleMode", tc.input, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("NormalizeLifecycleMode(%q) = %q, %v, want %q", tc.input, got, err, tc.want)
		}
	}
}

func TestTargetString(t *testing.T) {
	if got := ServerTarget("foo").String(); got != "mcp-servers/foo" {
		t.Fatalf("ServerTarget = %q", got)
	}
	if got := InstanceTarget("foo", "abc-1").String(); got != "mcp-servers/foo/instances/abc-1" {
		t.Fatalf("InstanceTarget = %q", got)
	}
}
