package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// DefaultHeaders are consulted in order when the peer is a trusted proxy.
var DefaultHeaders = []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// Resolver determines the client address of a request. Forwarding headers
// are honoured only when the direct peer is a trusted proxy, so clients
// cannot pick their own rate-limit bucket.
type Resolver struct {
	trusted []netip.Prefix
	headers []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTrustedProxies sets the proxy networks whose headers are believed.
// Entries may be CIDRs or single addresses; invalid entries are skipped.
func WithTrustedProxies(cidrs ...string) Option {
	return func(r *Resolver) {
		for _, c := range cidrs {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if p, err := netip.ParsePrefix(c); err == nil {
				r.trusted = append(r.trusted, p.Masked())
				continue
			}
			if a, err := netip.ParseAddr(c); err == nil {
				r.trusted = append(r.trusted, netip.PrefixFrom(a.Unmap(), a.Unmap().BitLen()))
			}
		}
	}
}

// WithHeaders replaces the forwarding headers consulted.
func WithHeaders(headers ...string) Option {
	return func(r *Resolver) {
		if len(headers) > 0 {
			r.headers = headers
		}
	}
}

// New creates a Resolver. Without trusted proxies it always uses RemoteAddr.
func New(opts ...Option) *Resolver {
	r := &Resolver{headers: DefaultHeaders}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IP returns the normalized client address, or "" if none is parseable.
func (r *Resolver) IP(req *http.Request) string {
	peer := peerAddr(req.RemoteAddr)
	if !peer.IsValid() {
		return ""
	}
	if !r.isTrusted(peer) {
		return peer.String()
	}

	for _, h := range r.headers {
		v := req.Header.Get(h)
		if v == "" {
			continue
		}
		if strings.EqualFold(h, "X-Forwarded-For") {
			if ip := r.fromForwardedFor(v); ip != "" {
				return ip
			}
			continue
		}
		if a, err := netip.ParseAddr(strings.TrimSpace(v)); err == nil {
			return a.Unmap().String()
		}
	}
	return peer.String()
}

// fromForwardedFor walks the chain right to left and returns the first hop
// that is not itself a trusted proxy.
func (r *Resolver) fromForwardedFor(v string) string {
	hops := strings.Split(v, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		a, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return ""
		}
		a = a.Unmap()
		if !r.isTrusted(a) {
			return a.String()
		}
	}
	return ""
}

func (r *Resolver) isTrusted(a netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

func peerAddr(remote string) netip.Addr {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		host = remote
	}
	a, err := netip.ParseAddr(strings.TrimSpace(host))
	if err != nil {
		return netip.Addr{}
	}
	return a.Unmap()
}
