//go:build !unix

package orchestrator

import "fmt"

func replaceProcess(argv, env []string) error {
	return fmt.Errorf("process replacement is only supported on unix hosts")
}
