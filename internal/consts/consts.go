package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)

	RoomTemperature = 300.15 // 27degC
)

// Solver policy defaults. Every value here can be overridden through config.Simulation.
const (
	DefaultTimeStep      = 0.01 // s
	DefaultMaxIterations = 50

	NewtonAbsTol = 1e-9
	NewtonRelTol = 1e-6

	Gmin = 1e-12 // S, added on every node diagonal

	// Resistances at or below IdealResistance are stamped as ideal zero-volt branches.
	IdealResistance = 1e-9
	// Bounded resistance used for shorted or redundant ideal branches.
	ShortCircuitResistance = 1e-6
	// Conductance standing in for an inductor during an operating point solve.
	InductorDCConductance = 1e6

	ACSamplesPerPeriod = 20
	MaxACSubsteps      = 64

	MinAdaptiveDt        = 1e-6
	MaxAdaptiveDt        = 0.01
	AdaptiveGrowthFactor = 1.2
	EasyIterations       = 3
	ConvergenceWindow    = 3
	MaxInternalSolves    = 10000

	// Residual bound (relative) for accepting a sparse solve without the dense fallback.
	ResidualTolerance = 1e-8
	// Dense LU condition number above which a matrix is treated as singular.
	SingularCondition = 1e16

	CurrentEpsilon  = 1e-9 // A
	PositionEpsilon = 1e-3
)
