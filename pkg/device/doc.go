// Package device provides the session used to control one light.
//
// A Session ties together the connection manager, the pending-response
// table, the property store and the direct-channel negotiator. Every
// operation runs the same steps:
//
//  1. Build the parameters and check their ranges (wire.ErrInvalidParams)
//  2. Map the light selector to commands and gate each one against the
//     capability set (wire.ErrMethodNotSupported)
//  3. Connect if needed
//  4. Send each command; on the primary channel wait for its response
//
// Nothing is written when step 1 or 2 fails.
//
// # Light selection
//
// Devices with a background light expose bg_ variants of most methods.
// WithLight chooses the channel:
//
//   - LightMain and LightBackground send one command.
//   - LightBoth sends main then background, or the combined method when
//     there is one (dev_toggle). Both must be supported.
//   - LightAuto (default) behaves like LightBoth when both are supported,
//     otherwise it uses whichever channel the device has.
//
// A two-command plan stops at the first failure. The first command is not
// undone.
//
// # Direct mode
//
// EnableDirectMode sends set_music with the negotiator's endpoint and waits
// for the device to connect back. Afterwards commands are written to that
// connection without waiting for a response, which allows high update
// rates. DisableDirectMode returns to the primary channel.
//
// Example:
//
//	s := device.NewSession(device.ConfigFromDescriptor(desc))
//	defer s.Close()
//
//	if err := s.TurnOn(ctx); err != nil {
//	    return err
//	}
//	err := s.SetRGB(ctx, 0xFF0000, device.WithDuration(time.Second))
package device
