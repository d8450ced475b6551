//go:build !darwin

package permissions

// EnsureMicrophone is a no-op on non-macOS platforms; access failures there
// surface when the device is opened.
func EnsureMicrophone() error {
	return nil
}
