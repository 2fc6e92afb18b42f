package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/it-atelier-gn/single-instance/internal/version.Version=..."
var (
	Version  = "dev"
	Revision = "unknown"
)

func String() string {
	return fmt.Sprintf("singleinstance %s (%s) %s/%s", Version, Revision, runtime.GOOS, runtime.GOARCH)
}
