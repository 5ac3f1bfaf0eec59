// Package bridge exposes the lights of a device.Registry over MQTT.
//
// Topic layout under the configured prefix:
//
//	<prefix>/bridge/status       online/offline, retained, last will
//	<prefix>/<id>/state          JSON command.State, retained
//	<prefix>/<id>/availability   online/offline, retained
//	<prefix>/<id>/set            JSON command.Command in
//	<prefix>/<id>/get            any payload triggers a property refresh
//	<prefix>/<id>/error          {"result":..,"error":..} of the last failure
//
// The broker connection is behind the Client interface; PahoClient
// implements it with the Eclipse Paho client.
package bridge
