package pipeline

import "time"

// Stage is one step of a pipeline run. Stages run in declaration order;
// there is no branching or retry.
type Stage int

const (
	StageVariables Stage = iota + 1
	StageStandardGeography
	StageDissolve
	StageGeneralize
	StageGrid
	StageEnrich
	StageExport
)

// Stages lists every stage in execution order.
var Stages = []Stage{
	StageVariables,
	StageStandardGeography,
	StageDissolve,
	StageGeneralize,
	StageGrid,
	StageEnrich,
	StageExport,
}

func (s Stage) String() string {
	switch s {
	case StageVariables:
		return "Variable Catalog"
	case StageStandardGeography:
		return "Standard Geography"
	case StageDissolve:
		return "Dissolve"
	case StageGeneralize:
		return "Generalize"
	case StageGrid:
		return "Generate Grids and Hexagons"
	case StageEnrich:
		return "Enrich"
	case StageExport:
		return "Export"
	}
	return "Unknown"
}

// StageTiming records when a stage finished, measured from the start of
// the run.
type StageTiming struct {
	Stage   Stage
	Elapsed time.Duration
}
