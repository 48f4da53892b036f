package matrix

// DeviceMatrix is the stamping surface. Indices are 1-based; index 0 is the
// reference node and writes to it are dropped.
type DeviceMatrix interface {
	AddElement(i, j int, value float64)
	AddRHS(i int, value float64)
}
