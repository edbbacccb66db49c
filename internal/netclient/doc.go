// Package netclient builds the HTTP client shared by the search backends
// and the snapshot fetcher.
//
// A single client is created per run. It applies the configured proxy
// (http, https, socks5 or socks5h), the TLS verification setting and a
// browser-like set of default headers to every request.
package netclient
