package server

import (
	"net"
	"net/http"
)

// NewHTTPSRedirectHandler answers every plain-HTTP request with a 307 to the
// same path on the TLS port, preserving the method and body.
func NewHTTPSRedirectHandler(tlsAddr string) http.Handler {
	_, tlsPort, err := net.SplitHostPort(tlsAddr)
	if err != nil {
		tlsPort = ""
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(r.Host); err == nil {
			host = h
		}
		if tlsPort != "" && tlsPort != "443" {
			host = net.JoinHostPort(host, tlsPort)
		}
		http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusTemporaryRedirect)
	})
}
