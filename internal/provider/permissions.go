package provider

import (
	"strings"

	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// Permissions is the global allowed-capability set plus per-plugin
// filesystem/network restrictions described in spec.md §4.8. Global
// forbidden lists always win over a more specific allow-list entry.
type Permissions struct {
	AllowedCapabilities map[ports.Capability]struct{}

	fsAllow   map[string]FSPermission
	fsForbid  []string
	netAllow  map[string]NetPermission
	netForbid []string
}

// FSPermission is a per-plugin filesystem allow-list entry.
type FSPermission struct {
	ReadPaths    []string
	WritePaths   []string
	ExecutePaths []string
}

// NetPermission is a per-plugin network allow-list entry. Hosts support a
// "*.domain" suffix match.
type NetPermission struct {
	Hosts     []string
	Ports     []int
	Protocols []string
}

// NewPermissions builds a Permissions set with the given globally allowed
// capabilities and no per-plugin restrictions.
func NewPermissions(allowed ...ports.Capability) *Permissions {
	m := make(map[ports.Capability]struct{}, len(allowed))
	for _, c := range allowed {
		m[c] = struct{}{}
	}
	return &Permissions{
		AllowedCapabilities: m,
		fsAllow:             make(map[string]FSPermission),
		netAllow:            make(map[string]NetPermission),
	}
}

// AllowCapability grants a capability globally.
func (p *Permissions) AllowCapability(c ports.Capability) { p.AllowedCapabilities[c] = struct{}{} }

// SetFSPermission installs a per-plugin filesystem allow-list.
func (p *Permissions) SetFSPermission(pluginID string, perm FSPermission) {
	p.fsAllow[pluginID] = perm
}

// SetNetPermission installs a per-plugin network allow-list.
func (p *Permissions) SetNetPermission(pluginID string, perm NetPermission) {
	p.netAllow[pluginID] = perm
}

// ForbidPath adds a path to the global forbidden-path list, which takes
// precedence over any plugin's allow-list.
func (p *Permissions) ForbidPath(path string) { p.fsForbid = append(p.fsForbid, path) }

// ForbidHost adds a host to the global forbidden-host list.
func (p *Permissions) ForbidHost(host string) { p.netForbid = append(p.netForbid, host) }

// CapabilityAllowed reports whether c is globally allowed and not excluded
// by pluginRestrictions (the "optional per-plugin restrictions subtracted
// from allowances" of §4.8).
func (p *Permissions) CapabilityAllowed(c ports.Capability, pluginRestrictions map[ports.Capability]struct{}) bool {
	if _, restricted := pluginRestrictions[c]; restricted {
		return false
	}
	_, ok := p.AllowedCapabilities[c]
	return ok
}

// AllowRead reports whether pluginID may read path: default-deny when no
// allow-list entry matches, global forbidden-path list always wins.
func (p *Permissions) AllowRead(pluginID, path string) bool {
	return p.checkFS(pluginID, path, func(perm FSPermission) []string { return perm.ReadPaths })
}

// AllowWrite reports whether pluginID may write path.
func (p *Permissions) AllowWrite(pluginID, path string) bool {
	return p.checkFS(pluginID, path, func(perm FSPermission) []string { return perm.WritePaths })
}

// AllowExecute reports whether pluginID may execute path.
func (p *Permissions) AllowExecute(pluginID, path string) bool {
	return p.checkFS(pluginID, path, func(perm FSPermission) []string { return perm.ExecutePaths })
}

func (p *Permissions) checkFS(pluginID, path string, pick func(FSPermission) []string) bool {
	for _, forbidden := range p.fsForbid {
		if pathMatches(forbidden, path) {
			return false
		}
	}
	perm, ok := p.fsAllow[pluginID]
	if !ok {
		return false
	}
	for _, allowed := range pick(perm) {
		if pathMatches(allowed, path) {
			return true
		}
	}
	return false
}

// AllowNetwork reports whether pluginID may connect to host:port over
// protocol, honoring "*.domain" suffix matches on the host allow-list and
// the global forbidden-host list's precedence.
func (p *Permissions) AllowNetwork(pluginID, host string, port int, protocol string) bool {
	for _, forbidden := range p.netForbid {
		if hostMatches(forbidden, host) {
			return false
		}
	}
	perm, ok := p.netAllow[pluginID]
	if !ok {
		return false
	}
	hostOK := false
	for _, allowed := range perm.Hosts {
		if hostMatches(allowed, host) {
			hostOK = true
			break
		}
	}
	if !hostOK {
		return false
	}
	if len(perm.Ports) > 0 && !containsInt(perm.Ports, port) {
		return false
	}
	if len(perm.Protocols) > 0 && !containsString(perm.Protocols, protocol) {
		return false
	}
	return true
}

// pathMatches reports whether path is equal to or nested under pattern.
func pathMatches(pattern, path string) bool {
	return path == pattern || strings.HasPrefix(path, strings.TrimSuffix(pattern, "/")+"/")
}

// hostMatches reports whether host satisfies pattern, supporting a
// "*.domain" suffix wildcard.
func hostMatches(pattern, host string) bool {
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".domain"
		return strings.HasSuffix(host, suffix) || host == pattern[2:]
	}
	return pattern == host
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
