package domain

import (
	"net/netip"
	"time"
)

// LocalhostIP is never sent to the geolocation resolver.
const LocalhostIP = "127.0.0.1"

// Visitor describes who followed a short link.
type Visitor struct {
	Referer    string `json:"referer"`
	UserAgent  string `json:"user_agent"`
	RemoteAddr string `json:"remote_addr"` // empty when unknown
}

// NewVisitor builds a Visitor. When anonymize is set the remote address is
// obfuscated before it is stored, except for localhost.
func NewVisitor(referer, userAgent, remoteAddr string, anonymize bool) Visitor {
	if anonymize {
		remoteAddr = AnonymizeAddr(remoteAddr)
	}

	return Visitor{
		Referer:    referer,
		UserAgent:  userAgent,
		RemoteAddr: remoteAddr,
	}
}

// AnonymizeAddr zeroes the last octet of an IPv4 address and the last 80 bits
// of an IPv6 address. Values that are not IP addresses are returned as they are.
func AnonymizeAddr(addr string) string {
	if addr == "" || addr == LocalhostIP {
		return addr
	}

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return addr
	}

	bits := 24
	if ip.Unmap().Is4() {
		ip = ip.Unmap()
	} else {
		bits = 48
	}

	prefix, err := ip.Prefix(bits)
	if err != nil {
		return addr
	}

	return prefix.Addr().String()
}

// Visit represents a click on a short link
type Visit struct {
	ID        string         `json:"id"`
	LinkID    int64          `json:"link_id"`
	Visitor   Visitor        `json:"visitor"`
	Location  *VisitLocation `json:"visit_location"` // nil until located
	CreatedAt time.Time      `json:"created_at"`
}

// RemoteAddr is a shortcut for the visitor's address.
func (v *Visit) RemoteAddr() string {
	return v.Visitor.RemoteAddr
}

// IsLocatable reports whether the visit address is worth sending to the resolver.
func (v *Visit) IsLocatable() bool {
	addr := v.RemoteAddr()
	return addr != "" && addr != LocalhostIP
}

// IsLocated reports whether the visit already carries a resolved location.
func (v *Visit) IsLocated() bool {
	return v.Location != nil && !v.Location.IsUnknown()
}

// Locate binds a location to the visit.
func (v *Visit) Locate(loc VisitLocation) {
	v.Location = &loc
}

// Stats represents aggregated statistics for a link
type LinkStats struct {
	TotalClicks      int64            `json:"total_clicks"`
	Referrers        map[string]int64 `json:"referrers"`    // count by domain
	DailyClicks      []DailyClick     `json:"daily_clicks"` // timeline
	Countries        map[string]int64 `json:"countries"`
	Cities           map[string]int64 `json:"cities"`
	Browsers         map[string]int64 `json:"browsers"`
	OperatingSystems map[string]int64 `json:"operating_systems"`
}

type DailyClick struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// UserAgentCount is a raw user agent string with the number of visits that sent it.
type UserAgentCount struct {
	UserAgent string
	Count     int64
}
