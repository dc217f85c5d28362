//go:build !windows

package input

// NativeStrategies returns the platform transports keyed by name. Only the
// Windows build carries native transports.
func NativeStrategies(string) map[string]Injector {
	return map[string]Injector{}
}
