package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	utls "github.com/refraction-networking/utls"
)

const http11 = "http/1.1"

// handshake upgrades raw to TLS. The chrome fingerprint mimics Chrome 120's
// client hello with ALPN restricted to HTTP/1.1, since responses are read
// with an HTTP/1.1 parser.
func (t *Transport) handshake(ctx context.Context, raw net.Conn, host string) (net.Conn, error) {
	if t.cfg.Timeout > 0 {
		raw.SetDeadline(time.Now().Add(t.cfg.Timeout))
	}

	var (
		c     net.Conn
		proto string
		err   error
	)
	switch t.cfg.Fingerprint {
	case FingerprintGo:
		tc := tls.Client(raw, &tls.Config{
			ServerName: host,
			RootCAs:    t.cfg.RootCAs,
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{http11},
		})
		err = tc.HandshakeContext(ctx)
		c, proto = tc, tc.ConnectionState().NegotiatedProtocol
	case FingerprintChrome, "":
		var uc *utls.UConn
		uc, err = chromeClient(raw, host, t.cfg)
		if err == nil {
			err = uc.HandshakeContext(ctx)
			c, proto = uc, uc.ConnectionState().NegotiatedProtocol
		}
	default:
		err = fmt.Errorf("unknown TLS fingerprint %q", t.cfg.Fingerprint)
	}
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	if proto != "" && proto != http11 {
		c.Close()
		return nil, fmt.Errorf("tls handshake with %s: server selected protocol %q", host, proto)
	}
	return c, nil
}

func chromeClient(raw net.Conn, host string, cfg Config) (*utls.UConn, error) {
	spec, err := utls.UTLSIdToSpec(utls.HelloChrome_120)
	if err != nil {
		return nil, err
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{http11}
		}
	}

	uc := utls.UClient(raw, &utls.Config{
		ServerName: host,
		RootCAs:    cfg.RootCAs,
		MinVersion: tls.VersionTLS12,
	}, utls.HelloCustom)
	if err := uc.ApplyPreset(&spec); err != nil {
		return nil, err
	}
	return uc, nil
}
