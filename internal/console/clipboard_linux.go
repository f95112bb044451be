//go:build linux

package console

import "fmt"

func copyToClipboard(string) error {
	return fmt.Errorf("clipboard not available on this platform (Linux without X11)")
}
