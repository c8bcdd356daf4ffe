package httpapi

import (
	"net"
)

// DetectAddress derives the address other nodes should use to reach a server
// listening on listen. An explicit host is kept; a wildcard host is replaced
// by the IP of the interface used for outbound traffic, or loopback when
// there is none.
func DetectAddress(listen string) (string, error) {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "", err
	}

	if host != "" && host != "0.0.0.0" && host != "::" {
		return listen, nil
	}
	return net.JoinHostPort(outboundIP(), port), nil
}

// outboundIP opens a UDP socket towards a public address. No packet is sent.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close() //nolint:errcheck

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok && addr.IP != nil {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
