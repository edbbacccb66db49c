// Package tor connects dorkscan to the Tor network.
//
// Client verifies that a SOCKS5 endpoint (a system Tor daemon on
// 127.0.0.1:9050 by default) actually speaks SOCKS5 before any search
// traffic is routed through it. EmbeddedTor launches a private Tor daemon
// with tornago for users without a local Tor installation.
//
// Neither type performs HTTP itself; the run's HTTP client is built by
// package netclient from ProxyURL.
package tor
