package door

// Noop implements Strike but does nothing.
// Used when no strike output is configured.
type Noop struct{}

// Open implements Strike.Open.
func (n *Noop) Open() error {
	return nil
}

// Close implements Strike.Close.
func (n *Noop) Close() error {
	return nil
}

// Release implements Strike.Release.
func (n *Noop) Release() error {
	return nil
}

// NoopSensors implements Sensors with fixed readings: door closed sensing
// absent, power assumed present.
type NoopSensors struct{}

// Door implements Sensors.Door.
func (n *NoopSensors) Door() bool { return false }

// Power implements Sensors.Power.
func (n *NoopSensors) Power() bool { return true }

// Release implements Sensors.Release.
func (n *NoopSensors) Release() error { return nil }
