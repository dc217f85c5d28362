//go:build windows

package input

// NativeStrategies returns the platform transports keyed by name.
func NativeStrategies(driverPath string) map[string]Injector {
	return map[string]Injector{
		StrategyDriver:   NewDriverInjector(driverPath),
		StrategyHardware: NewHardwareInjector(),
		StrategyMessage:  NewMessageInjector(),
	}
}
