/*
 * Copyright (c) 2013 IBM Corp.
 *
 * All rights reserved. This program and the accompanying materials
 * are made available under the terms of the Eclipse Public License v1.0
 * which accompanies this distribution, and is available at
 * http://www.eclipse.org/legal/epl-v10.html
 */

// Package transport opens the byte-duplex connections the client core
// reads and writes MQTT control packets over. It is the out-of-core
// "transport provider" collaborator described by the client's external
// interfaces: concrete dialing lives here so the core never dials a
// connection itself.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Options configures how Open dials a given URI.
type Options struct {
	TLSConfig  *tls.Config
	Timeout    time.Duration
	HTTPHeader http.Header
}

// Open dials uri and returns an established, ready-to-use connection.
// Supported schemes are tcp, unix, ssl/tls/tcps, ws and wss; any other scheme
// (including local://, see the core's Open Questions) returns an error.
func Open(uri *url.URL, opts Options) (net.Conn, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	switch uri.Scheme {
	case "tcp":
		return net.DialTimeout("tcp", uri.Host, timeout)
	case "unix":
		return net.DialTimeout("unix", uri.Host, timeout)
	case "ssl", "tls", "tcps":
		return tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", uri.Host, opts.TLSConfig)
	case "ws", "wss":
		return dialWebsocket(uri, opts)
	}
	return nil, fmt.Errorf("unsupported scheme %q", uri.Scheme)
}

// DefaultPort returns the conventional port for a scheme when the URI
// carries none, or 0 if the scheme has no established default.
func DefaultPort(scheme string) int {
	switch scheme {
	case "tcp", "ws":
		return 1883
	case "ssl", "tls", "tcps", "wss":
		return 8883
	}
	return 0
}
