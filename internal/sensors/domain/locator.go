package sensors

// Placement is where a sensor sits and how it is labelled.
type Placement struct {
	Position    Position
	DisplayName string
	Known       bool
}

// Locator resolves a sensor identity to its placement. A miss must resolve to
// DefaultPlacement, never fail.
type Locator interface {
	Locate(sensorID string) Placement
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(sensorID string) Placement

// Locate implements Locator.
func (f LocatorFunc) Locate(sensorID string) Placement {
	return f(sensorID)
}

// DefaultPosition is the centre of the reference room plane.
var DefaultPosition = Position{X: 2.5, Y: 7.0}

// DefaultPlacement is used for sensors missing from the layout.
func DefaultPlacement(sensorID string) Placement {
	return Placement{
		Position:    DefaultPosition,
		DisplayName: "unknown - " + sensorID,
	}
}
