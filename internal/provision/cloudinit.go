package provision

import (
	"fmt"
	"strings"

	"github.com/jhenriquezf/cw/internal/caddy"
	"github.com/jhenriquezf/cw/internal/config"
)

// UserData renders cloud-init user-data that performs the same bootstrap as
// Apply, for injecting into a fresh VM at create time instead of pushing
// over SSH afterwards.
func UserData(cfg *config.Config) (string, error) {
	caddyfile, err := caddy.Render(caddy.Site{
		Hostname:  cfg.Proxy.Hostname,
		Upstream:  cfg.Proxy.Upstream,
		AccessLog: cfg.Proxy.AccessLog,
	})
	if err != nil {
		return "", err
	}

	var rules strings.Builder
	for _, rule := range cfg.Provision.Firewall {
		fmt.Fprintf(&rules, "    ufw allow '%s'\n", rule)
	}

	return fmt.Sprintf(`#cloud-config
package_update: true
packages:
  - debian-keyring
  - debian-archive-keyring
  - apt-transport-https
  - curl
  - ufw
write_files:
  - path: %s
    permissions: '0644'
    content: |
%s
runcmd:
  - |
    set -eu
    curl -fsSL https://get.docker.com | sh
    curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/gpg.key' | gpg --dearmor -o /usr/share/keyrings/caddy-stable-archive-keyring.gpg --yes
    curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/debian.deb.txt' > /etc/apt/sources.list.d/caddy-stable.list
    apt-get update
    apt-get install -y caddy
    systemctl enable --now caddy
%s    ufw --force enable
`, cfg.Proxy.ConfigPath, indent(caddyfile, 6), rules.String()), nil
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
