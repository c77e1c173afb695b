package middleware

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/valyala/fasthttp"
)

// TrustedProxies lists the reverse proxies whose forwarding headers are believed.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies parses a comma-separated list of IPs and CIDRs. An empty string trusts no proxy.
func ParseTrustedProxies(s string) (TrustedProxies, error) {
	var out TrustedProxies
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", part, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (t TrustedProxies) contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range t {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIPFrom returns the client IP of rc, or "unknown". Forwarding headers are read only when
// the connection comes from a trusted proxy; X-Forwarded-For is walked from the right, skipping
// trusted hops, so a client cannot choose its own address by prepending entries.
func clientIPFrom(rc *fasthttp.RequestCtx, trusted TrustedProxies) string {
	remote, ok := netip.AddrFromSlice(rc.RemoteIP())
	if !ok || remote.IsUnspecified() {
		return "unknown"
	}
	remote = remote.Unmap()
	if !trusted.contains(remote) {
		return remote.String()
	}
	if xff := string(rc.Request.Header.Peek("X-Forwarded-For")); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !trusted.contains(hop) {
				return hop.Unmap().String()
			}
		}
	}
	if real, err := netip.ParseAddr(strings.TrimSpace(string(rc.Request.Header.Peek("X-Real-IP")))); err == nil {
		return real.Unmap().String()
	}
	return remote.String()
}
