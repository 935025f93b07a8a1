//go:build !linux || !amd64

package native

import (
	"errors"

	"github.com/deet-dbg/deet/pkg/proc"
)

// ErrNativeBackendDisabled is returned when the native backend is not
// available on this platform.
var ErrNativeBackendDisabled = errors.New("native backend not available on this platform")

// Launch returns ErrNativeBackendDisabled.
func Launch(_ []string, _ string) (proc.Process, error) {
	return nil, ErrNativeBackendDisabled
}
