package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

const imapsPort = "993"

// Known IMAP endpoints, keyed by mail domain
var knownIMAPServers = map[string]string{
	"gmail.com":      "imap.gmail.com:993",
	"googlemail.com": "imap.gmail.com:993",
	"outlook.com":    "outlook.office365.com:993",
	"hotmail.com":    "outlook.office365.com:993",
	"live.com":       "outlook.office365.com:993",
	"outlook.in":     "outlook.office365.com:993",
	"yahoo.com":      "imap.mail.yahoo.com:993",
	"yahoo.co.in":    "imap.mail.yahoo.com:993",
	"icloud.com":     "imap.mail.me.com:993",
	"me.com":         "imap.mail.me.com:993",
	"zoho.com":       "imap.zoho.com:993",
	"zohomail.in":    "imap.zoho.in:993",
	"rediffmail.com": "imap.rediffmail.com:993",
	"aol.com":        "imap.aol.com:993",
	"fastmail.com":   "imap.fastmail.com:993",
	"gmx.com":        "imap.gmx.com:993",
	"proton.me":      "127.0.0.1:1143", // Proton Mail Bridge
}

// Resolver finds the IMAP server of a mail domain
type Resolver struct {
	probeTimeout time.Duration
	probe        func(ctx context.Context, addr string) bool
	lookupMX     func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewResolver creates a resolver that probes candidate hosts over TCP
func NewResolver(probeTimeout time.Duration) *Resolver {
	r := &Resolver{probeTimeout: probeTimeout}
	r.probe = r.dialProbe
	r.lookupMX = net.DefaultResolver.LookupMX
	return r
}

// Resolve returns host:port for an email address: a known provider, then a
// reachable imap./mail. host of the domain, then one derived from the
// primary MX record, and finally imap.<domain>:993 unprobed.
func (r *Resolver) Resolve(ctx context.Context, email string) (string, error) {
	domain := DomainOf(email)
	if domain == "" {
		return "", fmt.Errorf("invalid email format")
	}

	if server, ok := knownIMAPServers[domain]; ok {
		return server, nil
	}

	if server, ok := r.firstReachable(ctx, "imap."+domain, "mail."+domain, domain); ok {
		return server, nil
	}

	if mx, err := r.lookupMX(ctx, domain); err == nil && len(mx) > 0 {
		host := strings.TrimSuffix(mx[0].Host, ".")
		if _, base, ok := strings.Cut(host, "."); ok {
			if server, ok := r.firstReachable(ctx, "imap."+base, "mail."+base); ok {
				return server, nil
			}
		}
	}

	return net.JoinHostPort("imap."+domain, imapsPort), nil
}

func (r *Resolver) firstReachable(ctx context.Context, hosts ...string) (string, bool) {
	for _, host := range hosts {
		addr := net.JoinHostPort(host, imapsPort)
		if r.probe(ctx, addr) {
			return addr, true
		}
	}
	return "", false
}

func (r *Resolver) dialProbe(ctx context.Context, addr string) bool {
	d := net.Dialer{Timeout: r.probeTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// DomainOf extracts the lowercased domain of an email address
func DomainOf(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return ""
	}
	return strings.ToLower(domain)
}
