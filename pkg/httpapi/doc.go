// Package httpapi serves a device.Registry as a small JSON API.
//
//	GET  /health                      bridge health and device counts
//	GET  /metrics                     Prometheus metrics, when configured
//	GET  /api/devices                 every light as command.State
//	GET  /api/devices/{id}            one light
//	POST /api/devices/{id}/command    apply a command.Command document
//	POST /api/devices/{id}/refresh    re-read properties from the device
//
// Command failures carry the protocol result name:
//
//	{"error":"brightness: invalid params: brightness 0 out of range 1-100","result":"INVALID_PARAMS"}
package httpapi
