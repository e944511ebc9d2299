//go:build unix

package orchestrator

import (
	"fmt"
	"os/exec"
	"syscall"
)

// replaceProcess execs the server in place of the current process. It only
// returns on error.
func replaceProcess(argv, env []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty server command")
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("server binary %q: %w", argv[0], err)
	}
	return syscall.Exec(path, argv, env)
}
