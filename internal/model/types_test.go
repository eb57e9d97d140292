package model

import "testing"

func TestServerPorts_Valid(t *testing.T) {
	cases := []struct {
		name  string
		ports ServerPorts
		want  bool
	}{
		{"defaults", ServerPorts{CDP: 9000, MCP: 9100, Extension: 9300}, true},
		{"collision", ServerPorts{CDP: 9000, MCP: 9000, Extension: 9300}, false},
		{"below range", ServerPorts{CDP: 80, MCP: 9100, Extension: 9300}, false},
		{"above range", ServerPorts{CDP: 9000, MCP: 9100, Extension: 70000}, false},
		{"boundary 1024 valid", ServerPorts{CDP: 1024, MCP: 9100, Extension: 9300}, true},
		{"boundary 1023 invalid", ServerPorts{CDP: 1023, MCP: 9100, Extension: 9300}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.ports.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}
