package planner

// Step is one action of a sync cycle, executed in order
type Step string

const (
	// StepCommit stages and commits every working-copy change
	StepCommit Step = "commit"
	// StepPull fast-forwards the branch from the remote
	StepPull Step = "pull"
	// StepPush pushes if the session is ahead once earlier steps ran
	StepPush Step = "push"
)

// Observation is what a remote check reported
type Observation struct {
	RemoteChanges bool
	LocalChanges  bool
}

// Decision is the plan for one sync cycle
type Decision struct {
	// Conflict is set when both sides diverged; Steps is then empty
	Conflict bool
	Steps    []Step
	Reason   string
}

// Plan decides what a sync cycle may safely do.
// No merge is ever attempted: divergence on both sides is reported as a conflict.
func Plan(obs Observation) Decision {
	switch {
	case obs.RemoteChanges && obs.LocalChanges:
		return Decision{
			Conflict: true,
			Reason:   "both local and remote changes detected; force pull or force push to resolve",
		}
	case obs.LocalChanges:
		return Decision{Steps: []Step{StepCommit, StepPush}, Reason: "local changes"}
	case obs.RemoteChanges:
		return Decision{Steps: []Step{StepPull, StepPush}, Reason: "remote changes"}
	default:
		return Decision{Steps: []Step{StepPush}, Reason: "no changes"}
	}
}

// Has reports whether the decision contains step
func (d Decision) Has(step Step) bool {
	for _, s := range d.Steps {
		if s == step {
			return true
		}
	}
	return false
}
