//go:build !((darwin || linux) && (amd64 || arm64))

package native

import (
	"fmt"
	"runtime"

	"github.com/platinummonkey/pdalplugins/pkg/plugins"
)

// Opener reports plugins.ErrUnsupported on this platform.
type Opener struct{}

// Open always fails.
func (Opener) Open(path string) (plugins.Library, error) {
	return nil, fmt.Errorf("native plugins on %s/%s: %w", runtime.GOOS, runtime.GOARCH, plugins.ErrUnsupported)
}
