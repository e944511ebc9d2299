// Package caddy renders the reverse-proxy site configuration the
// provisioner installs: one hostname block that proxies to the local
// application server, with gzip compression and a file access log.
package caddy

import (
	"fmt"
	"strings"
	"text/template"
)

// Site is a single Caddyfile site block.
type Site struct {
	Hostname  string
	Upstream  string
	AccessLog string
}

var siteTemplate = template.Must(template.New("caddyfile").Parse(`{{.Hostname}} {
	encode gzip

	reverse_proxy {{.Upstream}}

	log {
		output file {{.AccessLog}}
	}
}
`))

// Render produces the Caddyfile content for the site.
func Render(s Site) (string, error) {
	if err := s.validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := siteTemplate.Execute(&b, s); err != nil {
		return "", fmt.Errorf("render caddyfile: %w", err)
	}
	return b.String(), nil
}

func (s Site) validate() error {
	if s.Hostname == "" {
		return fmt.Errorf("caddy: hostname is required")
	}
	if s.Upstream == "" {
		return fmt.Errorf("caddy: upstream is required")
	}
	if s.AccessLog == "" {
		return fmt.Errorf("caddy: access log path is required")
	}
	for _, v := range []string{s.Hostname, s.Upstream, s.AccessLog} {
		if strings.ContainsAny(v, "{}\n") {
			return fmt.Errorf("caddy: invalid characters in %q", v)
		}
	}
	return nil
}
