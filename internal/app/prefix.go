package app

import (
	"net"
	"net/http"
	"strings"
)

// PrefixRouter serves the portal either at the root of its own subdomain or
// under a base path of the main host. Requests matching neither go to Root.
type PrefixRouter struct {
	Subdomain string
	BasePath  string
	Portal    http.Handler
	Root      http.Handler
}

func (p PrefixRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if p.onSubdomain(r.Host) {
		p.Portal.ServeHTTP(w, r)
		return
	}
	if p.BasePath != "" && (r.URL.Path == p.BasePath || strings.HasPrefix(r.URL.Path, p.BasePath+"/")) {
		http.StripPrefix(p.BasePath, p.Portal).ServeHTTP(w, r)
		return
	}
	if p.Root != nil {
		p.Root.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (p PrefixRouter) onSubdomain(hostport string) bool {
	if p.Subdomain == "" {
		return false
	}
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.HasPrefix(strings.ToLower(host), strings.ToLower(p.Subdomain))
}
