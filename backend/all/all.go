// Package all imports all the backends
package all

import (
	// Active remotes
	_ "github.com/safearchive/safearchive/backend/drive"
	_ "github.com/safearchive/safearchive/backend/ftp"
)
