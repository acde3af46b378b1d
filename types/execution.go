package types

// ExecutionRequest is one (code, input, language) triple sent to the remote engine.
type ExecutionRequest struct {
	SourceCode          string
	LanguageID          LanguageID
	Stdin               string
	CPUTimeLimitSeconds float64
	MemoryLimitKB       int
}

// ExecutionToken identifies a pending execution on the remote engine.
type ExecutionToken string

// StatusCode mirrors the remote engine's status vocabulary.
type StatusCode int

// Engine status ids.
const (
	StatusInQueue             StatusCode = 1
	StatusProcessing          StatusCode = 2
	StatusAccepted            StatusCode = 3
	StatusWrongAnswer         StatusCode = 4
	StatusTimeLimitExceeded   StatusCode = 5
	StatusCompilationError    StatusCode = 6
	StatusRuntimeErrorSIGSEGV StatusCode = 7
	StatusRuntimeErrorSIGXFSZ StatusCode = 8
	StatusRuntimeErrorSIGFPE  StatusCode = 9
	StatusRuntimeErrorSIGABRT StatusCode = 10
	StatusRuntimeErrorNZEC    StatusCode = 11
	StatusRuntimeErrorOther   StatusCode = 12
	StatusInternalError       StatusCode = 13
	StatusExecFormatError     StatusCode = 14
)

// Terminal reports whether the engine has finished processing.
// Only In Queue and Processing are non-terminal.
func (s StatusCode) Terminal() bool {
	return s != StatusInQueue && s != StatusProcessing
}

// NormalTermination reports whether the program ran to completion.
func (s StatusCode) NormalTermination() bool {
	return s == StatusAccepted || s == StatusWrongAnswer
}

// RuntimeError reports whether the status is one of the runtime error variants.
func (s StatusCode) RuntimeError() bool {
	return s >= StatusRuntimeErrorSIGSEGV && s <= StatusRuntimeErrorOther
}

// String returns the engine's description for the status.
func (s StatusCode) String() string {
	switch s {
	case StatusInQueue:
		return "In Queue"
	case StatusProcessing:
		return "Processing"
	case StatusAccepted:
		return "Accepted"
	case StatusWrongAnswer:
		return "Wrong Answer"
	case StatusTimeLimitExceeded:
		return "Time Limit Exceeded"
	case StatusCompilationError:
		return "Compilation Error"
	case StatusRuntimeErrorSIGSEGV:
		return "Runtime Error (SIGSEGV)"
	case StatusRuntimeErrorSIGXFSZ:
		return "Runtime Error (SIGXFSZ)"
	case StatusRuntimeErrorSIGFPE:
		return "Runtime Error (SIGFPE)"
	case StatusRuntimeErrorSIGABRT:
		return "Runtime Error (SIGABRT)"
	case StatusRuntimeErrorNZEC:
		return "Runtime Error (NZEC)"
	case StatusRuntimeErrorOther:
		return "Runtime Error (Other)"
	case StatusInternalError:
		return "Internal Error"
	case StatusExecFormatError:
		return "Exec Format Error"
	default:
		return "Unknown Status"
	}
}

// ExecutionOutcome is the terminal result reported by the remote engine.
type ExecutionOutcome struct {
	Status        StatusCode
	Description   string
	Stdout        *string
	Stderr        *string
	CompileOutput *string
	TimeSeconds   *float64
	MemoryKB      *int
}

// Label returns the engine description, falling back to the known name.
func (o ExecutionOutcome) Label() string {
	if o.Description != "" {
		return o.Description
	}
	return o.Status.String()
}

// VisibleOutput picks the human-diagnosable output of the execution.
// Stdout wins on normal termination. Runtime errors show stderr before any
// compiler warnings; everything else shows compiler output, then stderr,
// then whatever stdout exists.
func (o ExecutionOutcome) VisibleOutput() string {
	if o.Status.NormalTermination() && o.Stdout != nil {
		return *o.Stdout
	}
	order := []*string{o.CompileOutput, o.Stderr, o.Stdout}
	if o.Status.RuntimeError() {
		order = []*string{o.Stderr, o.CompileOutput, o.Stdout}
	}
	for _, s := range order {
		if s != nil && *s != "" {
			return *s
		}
	}
	return ""
}
