// Package discovery finds devices on the local network.
//
// Devices answer an SSDP-style search sent to 239.255.255.250:1982:
//
//	M-SEARCH * HTTP/1.1
//	HOST: 239.255.255.250:1982
//	MAN: "ssdp:discover"
//	ST: wifi_bulb
//
// Each reply is a block of "key: value" lines. Location carries the command
// address, support lists the methods the device accepts, and the remaining
// lines are a snapshot of its state. Devices also multicast the same block as
// a NOTIFY when they power up and periodically afterwards; Watch reports those.
//
// Networks that drop multicast replies can still be searched through mDNS.
// An MDNSBrowser lists _miio._udp instances whose names start with
// "yeelink-light-", and each address found this way is probed with a unicast
// search. mDNS never sets capabilities by itself; only the device's own reply
// does.
package discovery
