// Package mock provides a simulated light for tests and the simulator binary.
//
// A Device accepts command connections on TCP, applies the commands it
// receives to an in-memory property state, answers each one the way a real
// light does and pushes "props" notifications to every open connection when
// the state changes. set_music makes it dial back to the given endpoint and
// execute commands arriving there without answering.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"

	"github.com/yeelight-lan/yeelight-go/pkg/capability"
	"github.com/yeelight-lan/yeelight-go/pkg/log"
	"github.com/yeelight-lan/yeelight-go/pkg/props"
	"github.com/yeelight-lan/yeelight-go/pkg/transport"
	"github.com/yeelight-lan/yeelight-go/pkg/wire"
)

// Device represents a simulated light.
type Device struct {
	// ID is the device identifier reported in discovery replies.
	ID string

	// Model and FirmwareVersion are reported in discovery replies.
	Model           string
	FirmwareVersion string

	// Support is the advertised method set. Methods outside it are refused
	// with a device error.
	Support capability.Set

	// Handlers are callbacks that override the built-in behavior.
	Handlers DeviceHandlers

	// AdvertiseAddr overrides the Location of discovery replies. Needed
	// when listening on an unspecified address.
	AdvertiseAddr netip.AddrPort

	// Logger receives protocol events from the device side (optional).
	Logger log.Logger

	server *transport.Server

	mu       sync.RWMutex
	state    props.Properties
	received []wire.Command
	conns    map[*transport.Conn]struct{}
	music    *transport.Conn
}

// DeviceHandlers holds callbacks for device operations.
type DeviceHandlers struct {
	// OnCommand is called for every command before the built-in behavior.
	// When handled is true the returned reply is sent as is and the state
	// is left alone. A nil reply sends nothing.
	OnCommand func(cmd wire.Command) (reply []byte, handled bool)
}

// NewDevice creates a device in the off state.
func NewDevice(id string, support capability.Set) *Device {
	return &Device{
		ID:              id,
		Model:           "color",
		FirmwareVersion: "18",
		Support:         support,
		state: props.Properties{
			Bright:    100,
			CT:        4000,
			RGB:       0xFFFFFF,
			ColorMode: props.ModeCT,
			BgBright:  100,
			BgCT:      4000,
			BgRGB:     0xFFFFFF,
			BgLMode:   props.ModeCT,
		},
		conns: make(map[*transport.Conn]struct{}),
	}
}

// Start listens on address ("127.0.0.1:0" for tests).
func (d *Device) Start(ctx context.Context, address string) error {
	server, err := transport.NewServer(transport.ServerConfig{
		Address:  address,
		Logger:   d.Logger,
		OnAccept: d.accept,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	d.server = server
	return nil
}

// Stop closes the listener and every open connection.
func (d *Device) Stop() error {
	if d.server == nil {
		return ErrNotStarted
	}
	err := d.server.Stop()

	d.mu.Lock()
	conns := make([]*transport.Conn, 0, len(d.conns)+1)
	for c := range d.conns {
		conns = append(conns, c)
	}
	if d.music != nil {
		conns = append(conns, d.music)
		d.music = nil
	}
	d.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	return err
}

// Addr returns the command endpoint.
func (d *Device) Addr() netip.AddrPort {
	if d.server == nil || d.server.Addr() == nil {
		return netip.AddrPort{}
	}
	ap, _ := netip.ParseAddrPort(d.server.Addr().String())
	return ap
}

// Received returns every command received so far on any channel.
func (d *Device) Received() []wire.Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]wire.Command(nil), d.received...)
}

// Methods returns the method names of Received.
func (d *Device) Methods() []string {
	cmds := d.Received()
	out := make([]string, len(cmds))
	for i, c := range cmds {
		out[i] = c.Method
	}
	return out
}

// Connections returns the number of open command connections.
func (d *Device) Connections() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// MusicActive reports whether the device holds a direct connection.
func (d *Device) MusicActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.music != nil
}

// State returns the current property state.
func (d *Device) State() props.Properties {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Update changes the state as if from the physical switch or another
// controller and notifies every connection.
func (d *Device) Update(fn func(p *props.Properties)) {
	d.mu.Lock()
	before := d.state
	fn(&d.state)
	changed := changes(before, d.state)
	d.mu.Unlock()
	d.notify(changed)
}

// Disconnect closes every command connection from the device side.
func (d *Device) Disconnect() {
	d.mu.Lock()
	conns := make([]*transport.Conn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// SearchResponse returns the discovery reply for the current state.
func (d *Device) SearchResponse() []byte {
	return d.ssdpMessage("HTTP/1.1 200 OK\r\n")
}

// Advertisement returns the NOTIFY datagram a light multicasts on power up.
func (d *Device) Advertisement() []byte {
	return d.ssdpMessage("NOTIFY * HTTP/1.1\r\n" +
		"Host: 239.255.255.250:1982\r\n" +
		"NTS: ssdp:alive\r\n")
}

// Location returns the advertised command endpoint: AdvertiseAddr when set,
// otherwise the listener address.
func (d *Device) Location() netip.AddrPort {
	if d.AdvertiseAddr.IsValid() {
		return d.AdvertiseAddr
	}
	return d.Addr()
}

func (d *Device) ssdpMessage(start string) []byte {
	d.mu.RLock()
	state := d.state
	d.mu.RUnlock()

	power := "off"
	if state.Power {
		power = "on"
	}
	return fmt.Appendf([]byte(start), "Cache-Control: max-age=3600\r\n"+
		"Location: yeelight://%s\r\n"+
		"Server: POSIX UPnP/1.0 YGLC/1\r\n"+
		"id: %s\r\n"+
		"model: %s\r\n"+
		"fw_ver: %s\r\n"+
		"support: %s\r\n"+
		"power: %s\r\n"+
		"bright: %d\r\n"+
		"color_mode: %d\r\n"+
		"ct: %d\r\n"+
		"rgb: %d\r\n"+
		"hue: %d\r\n"+
		"sat: %d\r\n"+
		"name: %s\r\n\r\n",
		d.Location(), d.ID, d.Model, d.FirmwareVersion, d.Support,
		power, state.Bright, state.ColorMode, state.CT, state.RGB, state.Hue, state.Sat, state.Name)
}

func (d *Device) accept(conn net.Conn, _ string) {
	c := transport.NewConn(conn, transport.ConnConfig{
		Logger:       d.Logger,
		Channel:      log.ChannelPrimary,
		WriteTimeout: time.Second,
		OnLine:       d.handleLine,
		OnClose: func(c *transport.Conn, _ error) {
			d.mu.Lock()
			delete(d.conns, c)
			d.mu.Unlock()
		},
	})
	d.mu.Lock()
	d.conns[c] = struct{}{}
	d.mu.Unlock()
	c.Start()
}

func (d *Device) handleLine(c *transport.Conn, line []byte) {
	cmd, err := wire.DecodeCommand(line)
	if err != nil {
		// Real lights ignore garbage.
		return
	}
	d.mu.Lock()
	d.received = append(d.received, cmd)
	d.mu.Unlock()

	if h := d.Handlers.OnCommand; h != nil {
		if reply, handled := h(cmd); handled {
			if reply != nil {
				_ = c.Send(reply)
			}
			return
		}
	}

	result, changed, derr := d.Execute(cmd)
	if derr != nil {
		_ = c.Send(encodeError(cmd.ID, derr))
		return
	}
	_ = c.Send(encodeResult(cmd.ID, result))
	d.notify(changed)

	if cmd.Method == string(capability.SetMusic) {
		d.handleMusic(cmd)
	}
}

func (d *Device) handleMusic(cmd wire.Command) {
	on, _ := wire.ToInt(cmd.Params[0])
	if on == 0 {
		d.mu.Lock()
		music := d.music
		d.music = nil
		d.mu.Unlock()
		if music != nil {
			_ = music.Close()
		}
		return
	}

	host := wire.ToString(cmd.Params[1])
	port, _ := wire.ToInt(cmd.Params[2])
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), time.Second)
	if err != nil {
		return
	}
	c := transport.NewConn(conn, transport.ConnConfig{
		Logger:  d.Logger,
		Channel: log.ChannelDirect,
		OnLine: func(_ *transport.Conn, line []byte) {
			cmd, err := wire.DecodeCommand(line)
			if err != nil {
				return
			}
			d.mu.Lock()
			d.received = append(d.received, cmd)
			d.mu.Unlock()
			// No replies on the direct channel.
			_, _, _ = d.Execute(cmd)
		},
		OnClose: func(c *transport.Conn, _ error) {
			d.mu.Lock()
			if d.music == c {
				d.music = nil
				d.state.MusicOn = false
			}
			d.mu.Unlock()
		},
	})

	d.mu.Lock()
	old := d.music
	d.music = c
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.Start()
}

func (d *Device) notify(changed map[string]any) {
	if len(changed) == 0 {
		return
	}
	line, err := json.Marshal(map[string]any{"method": wire.PropsMethod, "params": changed})
	if err != nil {
		return
	}
	line = append(line, wire.Terminator...)

	d.mu.RLock()
	conns := make([]*transport.Conn, 0, len(d.conns))
	for c := range d.conns {
		conns = append(conns, c)
	}
	d.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(line)
	}
}

func encodeResult(id uint16, result []any) []byte {
	line, _ := json.Marshal(struct {
		ID     uint16 `json:"id"`
		Result []any  `json:"result"`
	}{id, result})
	return append(line, wire.Terminator...)
}

func encodeError(id uint16, e *wire.DeviceError) []byte {
	line, _ := json.Marshal(map[string]any{
		"id":    id,
		"error": map[string]any{"code": e.Code, "message": e.Message},
	})
	return append(line, wire.Terminator...)
}
