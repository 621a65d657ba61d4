package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// NormalizeAddress converts a user supplied address into a dialable
// host:port string. Accepted forms are host, host:port, IPv4, IPv6,
// [IPv6]:port and IPv6 with a %zone suffix. defaultPort is used when the
// address carries no port.
func NormalizeAddress(addr string, defaultPort int) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	host, port, err := splitAddress(addr, defaultPort)
	if err != nil {
		return "", err
	}

	if !isValidHost(host) {
		return "", fmt.Errorf("%w: bad host %q", ErrInvalidAddress, host)
	}
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: bad port %d", ErrInvalidAddress, port)
	}

	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

// splitAddress separates host and port, filling in defaultPort.
func splitAddress(addr string, defaultPort int) (string, int, error) {
	switch {
	case strings.HasPrefix(addr, "["):
		if strings.HasSuffix(addr, "]") {
			return addr[1 : len(addr)-1], defaultPort, nil
		}
		return splitHostPort(addr)
	case strings.Count(addr, ":") == 1:
		return splitHostPort(addr)
	default:
		// No colon is a bare host; several colons are a bare IPv6 literal.
		return addr, defaultPort, nil
	}
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("%w: bad port %q", ErrInvalidAddress, portStr)
	}
	return host, port, nil
}

// isValidHost accepts IP literals (IPv6 optionally zoned) and DNS host names.
func isValidHost(host string) bool {
	if host == "" {
		return false
	}

	ipPart, zone, zoned := strings.Cut(host, "%")
	if ip := net.ParseIP(ipPart); ip != nil {
		if zoned {
			return ip.To4() == nil && zone != ""
		}
		return true
	}
	if zoned || strings.Contains(host, ":") {
		return false
	}

	return isValidHostname(host)
}

func isValidHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// IsValidAddress reports whether addr can be normalized with the default port.
func IsValidAddress(addr string) bool {
	_, err := NormalizeAddress(addr, DefaultPort)
	return err == nil
}

// MACToLinkLocal derives the EUI-64 IPv6 link-local address for a 48-bit MAC
// address. A non-empty iface is appended as the zone.
func MACToLinkLocal(mac string, iface string) (string, error) {
	hw, err := net.ParseMAC(strings.TrimSpace(mac))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("%w: expected 48-bit MAC, got %d bytes", ErrInvalidAddress, len(hw))
	}

	ip := make(net.IP, net.IPv6len)
	ip[0], ip[1] = 0xfe, 0x80
	ip[8] = hw[0] ^ 0x02
	ip[9], ip[10] = hw[1], hw[2]
	ip[11], ip[12] = 0xff, 0xfe
	ip[13], ip[14], ip[15] = hw[3], hw[4], hw[5]

	if iface != "" {
		return ip.String() + "%" + iface, nil
	}
	return ip.String(), nil
}

// LinkLocalToMAC recovers the MAC address from an EUI-64 link-local address.
func LinkLocalToMAC(addr string) (string, error) {
	ipPart, _, _ := strings.Cut(strings.TrimSpace(addr), "%")
	ip := net.ParseIP(strings.Trim(ipPart, "[]"))
	if ip == nil || ip.To4() != nil {
		return "", fmt.Errorf("%w: %q is not an IPv6 address", ErrInvalidAddress, addr)
	}
	if !ip.IsLinkLocalUnicast() || ip[11] != 0xff || ip[12] != 0xfe {
		return "", ErrNotEUI64
	}

	hw := net.HardwareAddr{ip[8] ^ 0x02, ip[9], ip[10], ip[13], ip[14], ip[15]}
	return hw.String(), nil
}

// LocalAddresses lists the non-loopback unicast addresses of interfaces that
// are up. Link-local IPv6 addresses carry the interface name as zone.
func LocalAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsMulticast() {
				continue
			}
			if ipNet.IP.To4() == nil && ipNet.IP.IsLinkLocalUnicast() {
				out = append(out, ipNet.IP.String()+"%"+iface.Name)
				continue
			}
			out = append(out, ipNet.IP.String())
		}
	}

	return out, nil
}
