package bridge

import "strings"

// Availability and bridge status payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Topic leaf names under <prefix>/<id>/.
const (
	leafState        = "state"
	leafAvailability = "availability"
	leafSet          = "set"
	leafGet          = "get"
	leafError        = "error"
)

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

// State carries the retained JSON snapshot of a light.
func (t Topics) State(id string) string { return t.join(id, leafState) }

// Availability carries online or offline, retained.
func (t Topics) Availability(id string) string { return t.join(id, leafAvailability) }

// Set receives JSON commands.
func (t Topics) Set(id string) string { return t.join(id, leafSet) }

// Get requests a property refresh and state publish.
func (t Topics) Get(id string) string { return t.join(id, leafGet) }

// Error carries the last command failure of a light.
func (t Topics) Error(id string) string { return t.join(id, leafError) }

// Status is the bridge status and will topic.
func (t Topics) Status() string { return t.join("bridge", "status") }

// AllSet matches the set topic of every light.
func (t Topics) AllSet() string { return t.join("+", leafSet) }

// AllGet matches the get topic of every light.
func (t Topics) AllGet() string { return t.join("+", leafGet) }

// Parse splits a light topic into its id and leaf.
func (t Topics) Parse(topic string) (id, leaf string, ok bool) {
	rest, found := strings.CutPrefix(topic, strings.TrimSuffix(t.Prefix, "/")+"/")
	if !found {
		return "", "", false
	}
	id, leaf, found = strings.Cut(rest, "/")
	if !found || id == "" || leaf == "" || strings.Contains(leaf, "/") {
		return "", "", false
	}
	return id, leaf, true
}

func (t Topics) join(id, leaf string) string {
	return strings.TrimSuffix(t.Prefix, "/") + "/" + id + "/" + leaf
}
