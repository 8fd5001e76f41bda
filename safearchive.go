// Back up folders to a local drive, Google Drive or FTP
package main

import (
	_ "github.com/safearchive/safearchive/backend/all" // import all backends
	"github.com/safearchive/safearchive/cmd"
	_ "github.com/safearchive/safearchive/cmd/all" // import all commands
)

func main() {
	cmd.Main()
}
