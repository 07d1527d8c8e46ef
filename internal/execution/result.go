package execution

// Outcome classifies how an execution ended. Compile and runtime failures of
// the submitted program are outcomes, not Go errors; Internal covers
// infrastructure faults (daemon down, image missing, upload failures).
type Outcome int

const (
	OK Outcome = iota
	CompileError
	Runtime
	Timeout
	OOM
	Internal
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case CompileError:
		return "compile_error"
	case Runtime:
		return "runtime_error"
	case Timeout:
		return "timeout"
	case OOM:
		return "oom"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Run. Output holds the program's stdout for OK
// runs; Error holds compiler output, runtime stderr, or the infrastructure
// failure message depending on the outcome. ExecutionTime is the run phase
// wall clock in seconds.
type Result struct {
	Outcome       Outcome
	Compiled      bool
	Output        string
	Error         string
	ExecutionTime float64
	MemoryUsed    int64
}
