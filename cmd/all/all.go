// Package all imports all the commands
package all

import (
	// Active commands
	_ "github.com/safearchive/safearchive/cmd"
	_ "github.com/safearchive/safearchive/cmd/about"
	_ "github.com/safearchive/safearchive/cmd/authorize"
	_ "github.com/safearchive/safearchive/cmd/backup"
	_ "github.com/safearchive/safearchive/cmd/config"
	_ "github.com/safearchive/safearchive/cmd/obscure"
	_ "github.com/safearchive/safearchive/cmd/restore"
	_ "github.com/safearchive/safearchive/cmd/reveal"
	_ "github.com/safearchive/safearchive/cmd/schedule"
	_ "github.com/safearchive/safearchive/cmd/sync"
	_ "github.com/safearchive/safearchive/cmd/version"
)
