// internal/agent/stages.go
package agent

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// Stage is one model-facing stage of a step.
type Stage string

const (
	StageEvaluate Stage = "evaluate"
	StageFilter   Stage = "filter"
	StageDecide   Stage = "decide"
)

// canonicalOrder is the only order stages may run in.
var canonicalOrder = map[Stage]int{
	StageEvaluate: 0,
	StageFilter:   1,
	StageDecide:   2,
}

// StagePlan is the ordered list of stages a step runs between observing and
// executing.
type StagePlan []Stage

var (
	// SinglePlan asks for a decision directly from the observation.
	SinglePlan = StagePlan{StageDecide}
	// StagedPlan evaluates the last step, narrows the element list, then decides.
	StagedPlan = StagePlan{StageEvaluate, StageFilter, StageDecide}
)

// PlanFor resolves a configured strategy or explicit stage list into a plan.
// An explicit list wins over the strategy name.
func PlanFor(strategy string, stages []string) (StagePlan, error) {
	if len(stages) > 0 {
		plan := make(StagePlan, len(stages))
		for i, s := range stages {
			plan[i] = Stage(strings.ToLower(strings.TrimSpace(s)))
		}
		if err := plan.Validate(); err != nil {
			return nil, err
		}
		return plan, nil
	}

	switch strategy {
	case "", config.StrategySingle:
		return SinglePlan, nil
	case config.StrategyStaged:
		return StagedPlan, nil
	default:
		return nil, fmt.Errorf("unknown prompt strategy %q", strategy)
	}
}

// Validate requires known stages, no duplicates, canonical order, and a final
// decide stage.
func (p StagePlan) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("stage plan is empty")
	}
	last := -1
	for _, s := range p {
		pos, ok := canonicalOrder[s]
		if !ok {
			return fmt.Errorf("unknown stage %q", s)
		}
		if pos == last {
			return fmt.Errorf("stage %q appears more than once", s)
		}
		if pos < last {
			return fmt.Errorf("stage %q is out of order; stages run as evaluate, filter, decide", s)
		}
		last = pos
	}
	if p[len(p)-1] != StageDecide {
		return fmt.Errorf("stage plan must end with %q", StageDecide)
	}
	return nil
}

// Has reports whether the plan includes s.
func (p StagePlan) Has(s Stage) bool {
	for _, st := range p {
		if st == s {
			return true
		}
	}
	return false
}

// Staged reports whether any stage precedes the decision.
func (p StagePlan) Staged() bool {
	return len(p) > 1
}

func (p StagePlan) String() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = string(s)
	}
	return strings.Join(names, ",")
}
