package transcription

import (
	"bytes"
	"os/exec"
)

// commandRunner abstracts external tool execution for testability
type commandRunner interface {
	Run(name string, args ...string) (stdout string, stderr string, err error)
}

// execRunner executes commands via os/exec with discrete arguments.
// Paths are always passed as argv entries, never through a shell.
type execRunner struct{}

func (execRunner) Run(name string, args ...string) (string, string, error) {
	cmd := exec.Command(name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
