// cmd/ragview/main.go
package main

import (
	cmd "github.com/mwiater/ragview/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// main starts the ragview CLI application by delegating to the
// cobra root command defined in the commands package.
func main() {
	cmd.SetVersionInfo(version, commit, date)
	cmd.Execute()
}
