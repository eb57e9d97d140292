// Package model holds the plain data types shared across the supervisor,
// updater, and their collaborators. None of these types carry behavior
// beyond simple validation; they are passed by value between components.
package model

// ServerPorts is the coherent set of local TCP ports the sidecar listens
// on. Once Supervisor.Start returns successfully, all three are pairwise
// distinct and individually valid (1024-65535).
type ServerPorts struct {
	CDP       int
	MCP       int
	Extension int
}

// Valid reports whether all three ports are in range and pairwise distinct.
func (p ServerPorts) Valid() bool {
	inRange := func(port int) bool { return port > 1023 && port <= 65535 }
	if !inRange(p.CDP) || !inRange(p.MCP) || !inRange(p.Extension) {
		return false
	}
	return p.CDP != p.MCP && p.CDP != p.Extension && p.MCP != p.Extension
}

// ServerPaths resolves the filesystem locations the Process Controller needs
// to launch the sidecar. PrimaryExe/PrimaryResources point at whatever the
// Updater considers "best" (downloaded or bundled); when the Updater is in
// use, FallbackExe/FallbackResources point at the bundled install so launch
// can recover from a corrupted downloaded version. Otherwise they keep
// whatever the bundled ServerPaths carried.
type ServerPaths struct {
	PrimaryExe        string
	FallbackExe       string
	PrimaryResources  string
	FallbackResources string
	ExecutionDir      string
}

// ServerIdentity is opaque to the core; it is threaded through to the
// sidecar's launch arguments for the embedder's own observability needs.
type ServerIdentity struct {
	InstallID      string
	HostVersion    string
	SidecarVersion string
}

// ServerLaunchConfig is a pure value rebuilt fresh before every launch,
// since the Updater may have changed Paths since the last launch.
type ServerLaunchConfig struct {
	Ports       ServerPorts
	Paths       ServerPaths
	Identity    ServerIdentity
	AllowRemote bool
}

// ServerState is the persisted orphan-recovery record. CreationTime is the
// OS-reported process creation timestamp (not wall-clock "now"), used to
// disambiguate PID reuse across reboots.
type ServerState struct {
	PID          uint64 `json:"pid"`
	CreationTime uint64 `json:"creation_time"`
}
