// Package provision bootstraps a fresh host for the application: container
// runtime, reverse proxy with its site config, proxy service, and firewall
// allowlist. Every step probes the host before mutating it, so re-running
// on an already-provisioned host is a no-op.
package provision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/jhenriquezf/cw/internal/caddy"
	"github.com/jhenriquezf/cw/internal/config"
)

const stagedCaddyfile = "/tmp/cw-Caddyfile"

// File is a payload staged on the host before a step's commands run.
type File struct {
	Path    string
	Mode    os.FileMode
	Content []byte
}

// Step is one idempotent bootstrap action. An empty Probe means the step
// always applies.
type Step struct {
	Name  string
	Probe string
	Files []File
	Apply []string
}

// Plan computes the ordered bootstrap steps for the configured host.
func Plan(cfg *config.Config) ([]Step, error) {
	caddyfile, err := caddy.Render(caddy.Site{
		Hostname:  cfg.Proxy.Hostname,
		Upstream:  cfg.Proxy.Upstream,
		AccessLog: cfg.Proxy.AccessLog,
	})
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(caddyfile))

	steps := []Step{
		{
			Name:  "docker",
			Probe: "command -v docker >/dev/null 2>&1",
			Apply: []string{"curl -fsSL https://get.docker.com | sh"},
		},
		{
			Name:  "caddy",
			Probe: "command -v caddy >/dev/null 2>&1",
			Apply: []string{
				"apt-get update",
				"apt-get install -y debian-keyring debian-archive-keyring apt-transport-https curl",
				"curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/gpg.key'" +
					" | gpg --dearmor -o /usr/share/keyrings/caddy-stable-archive-keyring.gpg --yes",
				"curl -1sLf 'https://dl.cloudsmith.io/public/caddy/stable/debian.deb.txt'" +
					" > /etc/apt/sources.list.d/caddy-stable.list",
				"apt-get update",
				"apt-get install -y caddy",
			},
		},
		{
			Name: "caddyfile",
			Probe: fmt.Sprintf("sha256sum %s 2>/dev/null | grep -q ^%s",
				cfg.Proxy.ConfigPath, hex.EncodeToString(sum[:])),
			Files: []File{{Path: stagedCaddyfile, Mode: 0644, Content: []byte(caddyfile)}},
			Apply: []string{
				fmt.Sprintf("install -m 0644 %s %s", stagedCaddyfile, cfg.Proxy.ConfigPath),
				"systemctl try-reload-or-restart caddy",
			},
		},
		{
			Name:  "caddy-service",
			Probe: "systemctl is-enabled --quiet caddy && systemctl is-active --quiet caddy",
			Apply: []string{"systemctl enable --now caddy"},
		},
	}

	for _, rule := range cfg.Provision.Firewall {
		steps = append(steps, Step{
			Name:  "firewall " + rule,
			Probe: fmt.Sprintf("ufw status | grep -qw '%s'", rule),
			Apply: []string{fmt.Sprintf("ufw allow '%s'", rule)},
		})
	}
	steps = append(steps, Step{
		Name:  "firewall-enable",
		Probe: "ufw status | grep -q 'Status: active'",
		Apply: []string{"ufw --force enable"},
	})
	return steps, nil
}

// Provisioner applies a bootstrap plan through a runner.
type Provisioner struct {
	cfg    *config.Config
	runner Runner
}

func New(cfg *config.Config, runner Runner) *Provisioner {
	return &Provisioner{cfg: cfg, runner: runner}
}

// Apply runs every step in order, fail-fast. Already-satisfied steps are
// skipped.
func (p *Provisioner) Apply(ctx context.Context) error {
	steps, err := Plan(p.cfg)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.Probe != "" {
			if _, err := p.runner.Run(ctx, s.Probe); err == nil {
				log.Info().Str("step", s.Name).Msg("already satisfied, skipping")
				continue
			}
		}
		log.Info().Str("step", s.Name).Msg("applying")
		for _, f := range s.Files {
			if err := p.runner.Put(ctx, f.Content, f.Path, f.Mode); err != nil {
				return fmt.Errorf("step %s: stage %s: %w", s.Name, f.Path, err)
			}
		}
		for _, cmd := range s.Apply {
			out, err := p.runner.Run(ctx, cmd)
			if err != nil {
				return fmt.Errorf("step %s: %w\n%s", s.Name, err, out)
			}
		}
	}
	return nil
}
