package supervisor

import (
	"fmt"

	"github.com/browseros-org/sidecar-supervisor/internal/model"
	"github.com/browseros-org/sidecar-supervisor/internal/portprobe"
	"github.com/browseros-org/sidecar-supervisor/internal/prefs"
)

// resolvePortsWithStore loads each of the three sidecar ports from the
// preference store (falling back to the documented defaults), searches
// forward past any port that is unavailable or already claimed by a
// sibling port in this same set, and persists the resolved set back to the
// preference store. The three returned ports are always pairwise distinct.
func resolvePortsWithStore(store prefs.Store, excluded map[int]bool) (model.ServerPorts, error) {
	claimed := map[int]bool{}
	for k, v := range excluded {
		claimed[k] = v
	}

	cdp, err := resolveOnePort(store, prefs.KeyCDPPort, claimed)
	if err != nil {
		return model.ServerPorts{}, fmt.Errorf("resolve cdp port: %w", err)
	}
	claimed[cdp] = true

	mcp, err := resolveOnePort(store, prefs.KeyMCPPort, claimed)
	if err != nil {
		return model.ServerPorts{}, fmt.Errorf("resolve mcp port: %w", err)
	}
	claimed[mcp] = true

	ext, err := resolveOnePort(store, prefs.KeyExtensionPort, claimed)
	if err != nil {
		return model.ServerPorts{}, fmt.Errorf("resolve extension port: %w", err)
	}
	claimed[ext] = true

	ports := model.ServerPorts{CDP: cdp, MCP: mcp, Extension: ext}
	if !ports.Valid() {
		return model.ServerPorts{}, fmt.Errorf("resolved port set %+v is not pairwise distinct and in range", ports)
	}

	if store != nil {
		store.SetInt(prefs.KeyCDPPort, cdp)
		store.SetInt(prefs.KeyMCPPort, mcp)
		store.SetInt(prefs.KeyExtensionPort, ext)
	}
	return ports, nil
}

func resolveOnePort(store prefs.Store, key string, claimed map[int]bool) (int, error) {
	hint := defaultPortFor(key)
	if store != nil {
		if v := store.GetInt(key); v != 0 {
			hint = v
		}
	}

	if !claimed[hint] && portprobe.IsAvailable(hint) {
		return hint, nil
	}

	found := portprobe.FindAvailable(hint, claimed)
	if found == 0 {
		return 0, fmt.Errorf("no available port found starting from %d", hint)
	}
	return found, nil
}

func defaultPortFor(key string) int {
	if v, ok := prefs.Defaults[key].(int); ok {
		return v
	}
	return 0
}

// resolveAllowRemote reads server.allow_remote_in_mcp from the preference
// store, falling back to configured when no store is wired. Unlike the
// port keys, this preference is embedder-owned and is never written back.
func resolveAllowRemote(store prefs.Store, configured bool) bool {
	if store == nil {
		return configured
	}
	return store.GetBool(prefs.KeyAllowRemoteInMCP)
}
