// Package botconfig rewrites the target-agnostic gateway configuration into
// the shape each backend persists. The rewrite is structural only: values
// survive, but keys move or disappear where their presence already carries
// the meaning on the wire.
package botconfig

import (
	"encoding/json"
	"fmt"
)

// LANBind is the value gateway.bind is forced to. The gateway must listen
// on a LAN-safe interface regardless of what the caller asked for; the
// ingress path, not the bind address, decides reachability.
const LANBind = "lan"

// Transform applies the structural rewrite to a gateway configuration
// document:
//
//   - gateway.port and gateway.host are dropped and gateway.bind is forced
//     to a LAN-safe value; the listen address is the target's concern.
//   - a top-level sandbox block is relocated under agents.defaults.sandbox.
//   - channels.*.enabled is stripped; a channel's presence implies it is
//     enabled.
//   - skills.allowUnverified is stripped; only the allow-list survives.
//
// The input is never mutated.
func Transform(config map[string]any) map[string]any {
	out := deepCopy(config)
	if out == nil {
		out = make(map[string]any)
	}

	gateway, _ := out["gateway"].(map[string]any)
	if gateway == nil {
		gateway = make(map[string]any)
	}
	delete(gateway, "port")
	delete(gateway, "host")
	gateway["bind"] = LANBind
	out["gateway"] = gateway

	if sandbox, ok := out["sandbox"]; ok {
		agents, _ := out["agents"].(map[string]any)
		if agents == nil {
			agents = make(map[string]any)
		}
		defaults, _ := agents["defaults"].(map[string]any)
		if defaults == nil {
			defaults = make(map[string]any)
		}
		defaults["sandbox"] = sandbox
		agents["defaults"] = defaults
		out["agents"] = agents
		delete(out, "sandbox")
	}

	if channels, ok := out["channels"].(map[string]any); ok {
		for _, v := range channels {
			if channel, ok := v.(map[string]any); ok {
				delete(channel, "enabled")
			}
		}
	}

	if skills, ok := out["skills"].(map[string]any); ok {
		delete(skills, "allowUnverified")
	}

	return out
}

// Render marshals a transformed configuration document for persistence.
func Render(config map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(Transform(config), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render gateway config: %w", err)
	}
	return append(data, '\n'), nil
}

// deepCopy clones a JSON-shaped document so transforms never alias the
// caller's maps.
func deepCopy(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopy(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
