package videocli

// Output constants.
const (
	StdoutPath          = "-"
	analysisSuffix      = "_analysis.json"
	directoryPermission = 0750
	filePermission      = 0644
)

// Progress constants.
const (
	DefaultProgressLog   = 100
	PercentageMultiplier = 100
)
