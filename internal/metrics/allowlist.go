package metrics

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// AllowList is a set of client networks. The zero value allows everyone.
type AllowList []netip.Prefix

// ParseAllowList reads single addresses and CIDRs. Entries that do not
// parse are logged and skipped.
func ParseAllowList(entries []string, logger *slog.Logger) AllowList {
	return AllowList(parsePrefixes(entries, "allowed_ips", logger))
}

func parsePrefixes(entries []string, key string, logger *slog.Logger) []netip.Prefix {
	var list []netip.Prefix
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid CIDR in "+key, "cidr", entry, "error", err)
				continue
			}
			list = append(list, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid IP in "+key, "ip", entry, "error", err)
			continue
		}
		list = append(list, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return list
}

func containsAddr(list []netip.Prefix, addr netip.Addr) bool {
	if !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range list {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// Allows reports whether addr may pass
func (l AllowList) Allows(addr netip.Addr) bool {
	if len(l) == 0 {
		return true
	}
	return containsAddr(l, addr)
}

// Middleware answers 403 to clients outside the list. resolve picks the
// address that is checked; nil means the socket peer.
func (l AllowList) Middleware(resolve func(*http.Request) netip.Addr, logger *slog.Logger) func(http.Handler) http.Handler {
	if resolve == nil {
		resolve = PeerAddr
	}
	return func(next http.Handler) http.Handler {
		if len(l) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := resolve(r)
			if !l.Allows(addr) {
				logger.Warn("access denied by IP filter", "ip", addrString(addr, r), "path", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Proxies is the set of reverse proxies whose forwarding headers are
// believed. The zero value trusts nobody.
type Proxies []netip.Prefix

// ParseProxies reads trusted proxy addresses and CIDRs
func ParseProxies(entries []string, logger *slog.Logger) Proxies {
	return Proxies(parsePrefixes(entries, "trusted_proxies", logger))
}

// Trusts reports whether addr is a configured proxy
func (p Proxies) Trusts(addr netip.Addr) bool {
	return containsAddr(p, addr)
}

// ClientAddr resolves the client address. X-Forwarded-For and X-Real-IP
// are only read when the socket peer is a trusted proxy; the forwarded
// chain is walked from the right and the first untrusted hop wins. The
// result is invalid when nothing parses.
func (p Proxies) ClientAddr(r *http.Request) netip.Addr {
	peer := PeerAddr(r)
	if !p.Trusts(peer) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var last netip.Addr
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			last = addr
			if !p.Trusts(addr) {
				return addr
			}
		}
		if last.IsValid() {
			return last
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}
	return peer
}

// PeerAddr is the address of the socket peer. The result is invalid when
// RemoteAddr does not parse.
func PeerAddr(r *http.Request) netip.Addr {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}

func addrString(addr netip.Addr, r *http.Request) string {
	if addr.IsValid() {
		return addr.String()
	}
	return r.RemoteAddr
}
