//go:build !unix

package process

import "os/exec"

// killGroupOnCancel keeps the default behaviour of killing only the
// direct child.
func killGroupOnCancel(cmd *exec.Cmd) {}
