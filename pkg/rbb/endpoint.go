package rbb

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is a parsed listening address.
type Endpoint struct {
	Network string // "tcp" or "unix"
	IP      net.IP // tcp only, IPv4
	Port    int    // tcp only; 0 picks an ephemeral port
	Path    string // unix only
}

// ParseEndpoint accepts:
//
//	9823                  all IPv4 interfaces, port 9823
//	:9823                 same
//	127.0.0.1:9823        one interface
//	localhost:9823        loopback
//	unix:/tmp/rbb.sock    Unix-domain socket
//	/tmp/rbb.sock         Unix-domain socket (anything with a '/')
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("rbb: empty endpoint")
	}

	if path, ok := strings.CutPrefix(s, "unix:"); ok {
		if path == "" {
			return Endpoint{}, fmt.Errorf("rbb: empty unix socket path")
		}
		return Endpoint{Network: "unix", Path: path}, nil
	}
	if strings.Contains(s, "/") {
		return Endpoint{Network: "unix", Path: s}, nil
	}

	host, portStr := "", s
	if strings.Contains(s, ":") {
		var err error
		host, portStr, err = net.SplitHostPort(s)
		if err != nil {
			return Endpoint{}, fmt.Errorf("rbb: endpoint %q: %w", s, err)
		}
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("rbb: endpoint %q: invalid port %q", s, portStr)
	}

	var ip net.IP
	switch host {
	case "", "*":
		ip = net.IPv4zero
	case "localhost":
		ip = net.IPv4(127, 0, 0, 1)
	default:
		ip = net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return Endpoint{}, fmt.Errorf("rbb: endpoint %q: host must be an IPv4 address", s)
		}
	}

	return Endpoint{Network: "tcp", IP: ip.To4(), Port: port}, nil
}

func (e Endpoint) String() string {
	if e.Network == "unix" {
		return "unix:" + e.Path
	}
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}
