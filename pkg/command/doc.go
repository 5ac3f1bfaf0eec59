// Package command maps JSON control requests onto device sessions.
//
// The MQTT bridge and the HTTP API accept the same Command document:
//
//	{"state": "on", "brightness": 40, "color_temp": 2700, "transition": 1000}
//	{"color": {"r": 255, "g": 0, "b": 0}, "light": "background"}
//	{"flow": "sunrise"}
//	{"direct": true}
//
// and publish the same State snapshot.
package command
