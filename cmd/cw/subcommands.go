package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jhenriquezf/cw/internal/caddy"
	"github.com/jhenriquezf/cw/internal/config"
	"github.com/jhenriquezf/cw/internal/journal"
	"github.com/jhenriquezf/cw/internal/orchestrator"
	"github.com/jhenriquezf/cw/internal/provision"
	"github.com/jhenriquezf/cw/internal/sshx"
	"github.com/jhenriquezf/cw/internal/staticfiles"
)

// Resolve config from the persistent flag
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	return config.Load(cfgPath)
}

func openJournal(cfg *config.Config) *journal.Journal {
	if cfg.Journal.Disabled {
		return nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Journal.Path).Msg("journal unavailable")
		return nil
	}
	return j
}

// Container entrypoint: migrate, collectstatic, exec the server
func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run the startup sequence and exec the application server",
		Long: "Applies pending schema migrations, rebuilds the static directory, runs any\n" +
			"extra release steps, then replaces this process with the application server.\n" +
			"Any failing step aborts startup with a non-zero exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			jnl := openJournal(cfg)
			if jnl != nil {
				defer jnl.Close()
			}
			return orchestrator.New(cfg, jnl).Up(cmd.Context())
		},
	}
}

// Run the migration step alone
func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			summary, err := orchestrator.New(cfg, nil).Migrate(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		},
	}
}

// Run the static collection step alone
func newCollectStaticCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collectstatic",
		Short: "Clear and repopulate the static asset directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			c := &staticfiles.Collector{
				Sources:  cfg.Static.Sources,
				Root:     cfg.Static.Root,
				Manifest: cfg.Static.Manifest,
			}
			res, err := c.Collect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("collected %d files (%d bytes) into %s\n", res.Files, res.Bytes, cfg.Static.Root)
			return nil
		},
	}
}

// Render the reverse proxy config
func newCaddyfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "caddyfile",
		Short: "Render the reverse-proxy site configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			out, err := caddy.Render(caddy.Site{
				Hostname:  cfg.Proxy.Hostname,
				Upstream:  cfg.Proxy.Upstream,
				AccessLog: cfg.Proxy.AccessLog,
			})
			if err != nil {
				return err
			}
			dest, _ := cmd.Flags().GetString("output")
			if dest == "" {
				fmt.Print(out)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}
			return os.WriteFile(dest, []byte(out), 0644)
		},
	}
	cmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	return cmd
}

// Bootstrap a host
func newProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Bootstrap a fresh host: docker, caddy, site config, firewall",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			local, _ := cmd.Flags().GetBool("local")
			var runner provision.Runner
			if local {
				runner = provision.LocalRunner{}
			} else {
				r, err := provision.NewSSHRunner(cfg.Provision)
				if err != nil {
					return err
				}
				runner = r
			}
			start := time.Now()
			if err := provision.New(cfg, runner).Apply(cmd.Context()); err != nil {
				return err
			}
			log.Info().Dur("elapsed", time.Since(start)).Msg("host provisioned")
			return nil
		},
	}
	cmd.Flags().Bool("local", false, "provision this machine instead of the configured remote host")
	cmd.AddCommand(newCloudInitCmd())
	return cmd
}

// Emit cloud-init user-data for a fresh VM
func newCloudInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cloud-init",
		Short: "Print cloud-init user-data performing the same bootstrap",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			out, err := provision.UserData(cfg)
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

// Show recent startup runs
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent startup runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			jnl, err := journal.Open(cfg.Journal.Path)
			if err != nil {
				return err
			}
			defer jnl.Close()
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := jnl.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("run %d\t%s\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.Status)
				for _, s := range r.Steps {
					fmt.Printf("  %-16s %-10s %8s  %s\n", s.Name, s.Status, s.Duration, s.Detail)
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 10, "number of runs to show")
	return cmd
}

// Generate the provisioning SSH key
func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate the ed25519 keypair used for remote provisioning",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			keyPath := filepath.Join(cfg.Provision.SSH.KeyDir, "id_ed25519")
			if _, err := os.Stat(keyPath); err == nil {
				return fmt.Errorf("key already exists at %s", keyPath)
			}
			pub, err := sshx.GenerateKeypair(keyPath)
			if err != nil {
				return err
			}
			fmt.Print(pub)
			return nil
		},
	}
}
