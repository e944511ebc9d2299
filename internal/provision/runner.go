package provision

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jhenriquezf/cw/internal/config"
	"github.com/jhenriquezf/cw/internal/sshx"
)

// Runner executes bootstrap commands and stages files on the target host,
// either locally or over SSH.
type Runner interface {
	Run(ctx context.Context, command string) (string, error)
	Put(ctx context.Context, data []byte, path string, mode os.FileMode) error
}

// LocalRunner provisions the machine it runs on.
type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("run %q: %w", command, err)
	}
	return string(out), nil
}

func (LocalRunner) Put(ctx context.Context, data []byte, path string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return os.Chmod(path, mode)
}

// SSHRunner provisions a remote host with strict host key checking.
type SSHRunner struct {
	client *sshx.Client
}

// NewSSHRunner builds a runner for the configured remote host using the
// ed25519 key in the configured key dir.
func NewSSHRunner(cfg config.Provision) (*SSHRunner, error) {
	if cfg.Host.IP == "" {
		return nil, fmt.Errorf("provision: host.ip is required for remote provisioning")
	}
	signer, err := sshx.LoadSigner(filepath.Join(cfg.SSH.KeyDir, "id_ed25519"))
	if err != nil {
		return nil, err
	}
	kh, err := sshx.KnownHostsCallback(cfg.SSH.KnownHosts)
	if err != nil {
		return nil, err
	}
	return &SSHRunner{client: &sshx.Client{
		Addr:       fmt.Sprintf("%s:%d", cfg.Host.IP, cfg.Host.Port),
		User:       cfg.Host.User,
		Signer:     signer,
		KnownHosts: kh,
		Timeout:    30 * time.Second,
		Retries:    2,
		Backoff:    500 * time.Millisecond,
	}}, nil
}

func (r *SSHRunner) Run(ctx context.Context, command string) (string, error) {
	return r.client.Run(ctx, command)
}

func (r *SSHRunner) Put(ctx context.Context, data []byte, path string, mode os.FileMode) error {
	cli, err := sshx.Dial(ctx, r.client)
	if err != nil {
		return err
	}
	defer cli.Close()
	return sshx.PushBytes(cli, data, path, mode)
}
