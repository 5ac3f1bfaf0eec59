package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "yeelight/"}

	assert.Equal(t, "yeelight/0x1/state", topics.State("0x1"))
	assert.Equal(t, "yeelight/0x1/availability", topics.Availability("0x1"))
	assert.Equal(t, "yeelight/+/set", topics.AllSet())
	assert.Equal(t, "yeelight/bridge/status", topics.Status())

	tests := []struct {
		topic  string
		id     string
		leaf   string
		wantOK bool
	}{
		{"yeelight/0x1/set", "0x1", "set", true},
		{"yeelight/10.0.0.2:55443/get", "10.0.0.2:55443", "get", true},
		{"yeelight/0x1", "", "", false},
		{"yeelight//set", "", "", false},
		{"yeelight/0x1/set/extra", "", "", false},
		{"other/0x1/set", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			id, leaf, ok := topics.Parse(tt.topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.leaf, leaf)
		})
	}
}
