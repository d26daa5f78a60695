package ipfilter

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// IdentityFunc extrai a identidade do request.
// ok=false é o "skip": o request não é filtrado e o store nem é consultado.
type IdentityFunc func(r *http.Request) (id string, ok bool)

// DefaultIdentityFunc usa, nesta ordem: header keyHeader, primeiro IP do
// X-Forwarded-For (se trustXFF) e o host de RemoteAddr.
// IPs dentro de algum prefixo de skip não são filtrados.
func DefaultIdentityFunc(keyHeader string, trustXFF bool, skip ...netip.Prefix) IdentityFunc {
	return func(r *http.Request) (string, bool) {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v, true
			}
		}

		id := ""
		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				id = strings.TrimSpace(first)
			}
		}

		if id == "" {
			addr := strings.TrimSpace(r.RemoteAddr)
			if host, _, err := net.SplitHostPort(addr); err == nil {
				addr = host
			}
			id = addr
		}
		if id == "" {
			return "", false
		}

		if len(skip) > 0 {
			if ip, err := netip.ParseAddr(id); err == nil {
				ip = ip.Unmap()
				for _, p := range skip {
					if p.Contains(ip) {
						return "", false
					}
				}
			}
		}
		return id, true
	}
}

// ParsePrefixes aceita CIDRs ou IPs soltos separados por vírgula ("10.0.0.0/8, 127.0.0.1").
func ParsePrefixes(list string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			ip, err := netip.ParseAddr(part)
			if err != nil {
				return nil, err
			}
			out = append(out, netip.PrefixFrom(ip, ip.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
