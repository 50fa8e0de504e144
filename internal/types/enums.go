package types

type UnitKind string

const (
	UnitKindSource  UnitKind = "source"
	UnitKindTool    UnitKind = "tool"
	UnitKindPackage UnitKind = "package"
	UnitKindStage   UnitKind = "stage"
)

// UnitState is a rung on the configured -> built -> installed ladder.
// The zero value means the unit has not been started.
type UnitState string

const (
	UnitStateNone       UnitState = ""
	UnitStateConfigured UnitState = "configured"
	UnitStateBuilt      UnitState = "built"
	UnitStateInstalled  UnitState = "installed"
)

func (s UnitState) Rank() int {
	switch s {
	case UnitStateConfigured:
		return 1
	case UnitStateBuilt:
		return 2
	case UnitStateInstalled:
		return 3
	default:
		return 0
	}
}

func (s UnitState) Valid() bool {
	return s == UnitStateConfigured || s == UnitStateBuilt || s == UnitStateInstalled
}

// Next returns the rung after s. Installed is terminal.
func (s UnitState) Next() UnitState {
	switch s {
	case UnitStateNone:
		return UnitStateConfigured
	case UnitStateConfigured:
		return UnitStateBuilt
	default:
		return UnitStateInstalled
	}
}

// Previous returns the rung before s. Configured regresses to none.
func (s UnitState) Previous() UnitState {
	switch s {
	case UnitStateInstalled:
		return UnitStateBuilt
	case UnitStateBuilt:
		return UnitStateConfigured
	default:
		return UnitStateNone
	}
}

// AtLeast reports whether s has reached other.
func (s UnitState) AtLeast(other UnitState) bool {
	return s.Rank() >= other.Rank()
}

type Operation string

const (
	OperationBuild   Operation = "build"
	OperationInstall Operation = "install"
	OperationClean   Operation = "clean"
	OperationUnbuild Operation = "unbuild"
	OperationPackage Operation = "package"
	OperationShow    Operation = "show"
)

// Resets reports whether the operation moves state backwards. Reset
// operations with no selection bypass the installed filter.
func (o Operation) Resets() bool {
	return o == OperationClean || o == OperationUnbuild
}

type StepPhase string

const (
	StepPhaseAcquire    StepPhase = "acquire"
	StepPhaseExtract    StepPhase = "extract"
	StepPhasePatch      StepPhase = "patch"
	StepPhaseRegenerate StepPhase = "regenerate"
	StepPhaseConfigure  StepPhase = "configure"
	StepPhaseCompile    StepPhase = "compile"
	StepPhaseInstall    StepPhase = "install"
	StepPhaseBuild      StepPhase = "build"
)

type MessageOp string

const (
	MessageOpBuild       MessageOp = "build"
	MessageOpExecute     MessageOp = "execute"
	MessageOpLog         MessageOp = "log"
	MessageOpResultGraph MessageOp = "result_graph"
)

type BrokerKind string

const (
	BrokerKindAMQP   BrokerKind = "amqp"
	BrokerKindSQS    BrokerKind = "sqs"
	BrokerKindMemory BrokerKind = "memory"
)

type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRejected  JobStatus = "rejected"
)
