// Package wire defines the JSON line format spoken on the device command channel.
//
// Every frame is a single JSON object terminated by "\r\n".
//
// # Message Types
//
// There are three message types:
//   - Command: client to device, {"id":N,"method":"...","params":[...]}
//   - Response: device to client, {"id":N,"result":[...]} or {"id":N,"error":{...}}
//   - Notification: device to client, {"method":"props","params":{...}} (no id)
//
// # Results
//
// Every operation in this module reports one of the Result codes defined
// here. A nil error means ResultSuccess; every other code has a sentinel
// error (ErrTimeout, ErrConnectionLost, ...) and ResultOf maps any returned
// error back to its code.
package wire
