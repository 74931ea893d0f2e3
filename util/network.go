package util

import (
	"fmt"
	"net"
	"strconv"
)

// ResolveIP returns the first address for host, validating that the
// host is a numeric IP when noDNS is true.
func ResolveIP(host string, noDNS bool) (net.IP, error) {
	addrs, err := LookupHost(host, noDNS)
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("no usable address for %q", host)
}

// LookupHost resolves a hostname.  With noDNS it only accepts numeric IPs.
func LookupHost(host string, noDNS bool) ([]string, error) {
	if noDNS {
		if net.ParseIP(host) == nil {
			return nil, fmt.Errorf("cannot parse %q as an IP address (DNS disabled with -n)", host)
		}
		return []string{host}, nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup for %q: %w", host, err)
	}
	return addrs, nil
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
