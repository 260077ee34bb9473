// Package permissions lists the admin routes that can be granted to
// non-super administrators. A permission key is "METHOD /route/pattern".
package permissions

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Definition describes one grantable admin route.
type Definition struct {
	Key    string `json:"key"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Label  string `json:"label"`
	Module string `json:"module"`
}

const adminPrefix = "/v0/admin"

// modules groups the permissioned routes in display order.
var modules = []struct {
	name   string
	routes [][3]string // method, path below adminPrefix, label
}{
	{"Users", [][3]string{
		{"GET", "/users", "List Users"},
		{"GET", "/users/:id", "Get User"},
		{"POST", "/users/:id/disable", "Disable User"},
		{"POST", "/users/:id/enable", "Enable User"},
	}},
	{"Subscriptions", [][3]string{
		{"GET", "/users/:id/subscription", "Get Subscription"},
		{"PUT", "/users/:id/subscription", "Override Subscription"},
	}},
	{"Plans", [][3]string{
		{"GET", "/plans", "List Plans"},
	}},
	{"Settings", [][3]string{
		{"GET", "/settings", "List Settings"},
		{"PUT", "/settings/:key", "Update Setting"},
	}},
	{"Administrators", [][3]string{
		{"POST", "/admins", "Create Administrator"},
		{"GET", "/admins", "List Administrators"},
		{"GET", "/permissions", "List Permission Definitions"},
	}},
}

var (
	definitions []Definition
	known       = map[string]struct{}{}
)

func init() {
	for _, m := range modules {
		for _, r := range m.routes {
			def := Definition{
				Key:    Key(r[0], adminPrefix+r[1]),
				Method: r[0],
				Path:   adminPrefix + r[1],
				Label:  r[2],
				Module: m.name,
			}
			definitions = append(definitions, def)
			known[def.Key] = struct{}{}
		}
	}
}

// Key builds a permission key from a method and a gin route pattern.
func Key(method, path string) string {
	return strings.ToUpper(method) + " " + path
}

// Definitions returns a copy of all permission definitions.
func Definitions() []Definition {
	return slices.Clone(definitions)
}

// Normalize trims, de-duplicates and sorts permissions.
func Normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, perm := range perms {
		if trimmed := strings.TrimSpace(perm); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate rejects keys that do not name a permissioned route.
func Validate(perms []string) error {
	for _, perm := range Normalize(perms) {
		if _, ok := known[perm]; !ok {
			return fmt.Errorf("invalid permission: %s", perm)
		}
	}
	return nil
}

// Parse decodes a stored permission list. Malformed JSON grants nothing.
func Parse(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var perms []string
	if err := json.Unmarshal(raw, &perms); err != nil {
		return []string{}
	}
	return Normalize(perms)
}

// Marshal encodes the normalized list for storage.
func Marshal(perms []string) ([]byte, error) {
	return json.Marshal(Normalize(perms))
}

// Has reports whether key is granted.
func Has(perms []string, key string) bool {
	return key != "" && slices.Contains(perms, key)
}
