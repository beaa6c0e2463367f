package pipeline

import "strings"

// StageState is a stage status. The five canonical values below are the only
// ones the resolvers produce; NormalizeStageState passes anything it does not
// recognise through lower-cased.
type StageState string

const (
	StatePending    StageState = "pending"
	StateInProgress StageState = "in_progress"
	StateBlocked    StageState = "blocked"
	StateRejected   StageState = "rejected"
	StateCompleted  StageState = "completed"
)

// Matching order matters: a value is checked against each set in turn.
var stateKeywords = []struct {
	state    StageState
	keywords []string
}{
	{StateCompleted, []string{"approved", "completed", "done", "ready"}},
	{StateInProgress, []string{"in_progress", "processing", "running", "active"}},
	{StateBlocked, []string{"blocked", "on_hold", "hold", "issue"}},
	{StateRejected, []string{"rejected", "failed", "cancelled"}},
	{StatePending, []string{"queued", "waiting", "pending", ""}},
}

func NormalizeStageState(value string) StageState {
	v := strings.ToLower(value)
	for _, set := range stateKeywords {
		for _, kw := range set.keywords {
			if v == kw {
				return set.state
			}
		}
	}
	return StageState(v)
}

// IsCanonical reports whether s is one of the five canonical states.
func (s StageState) IsCanonical() bool {
	_, ok := statusDisplays[s]
	return ok
}

type StatusDisplay struct {
	Label     string `json:"label"`
	ClassName string `json:"class_name"`
}

var statusDisplays = map[StageState]StatusDisplay{
	StateCompleted:  {Label: "Completed", ClassName: "bg-green-100 text-green-800 border-green-200"},
	StateInProgress: {Label: "In Progress", ClassName: "bg-blue-100 text-blue-800 border-blue-200"},
	StateBlocked:    {Label: "Blocked", ClassName: "bg-amber-100 text-amber-800 border-amber-200"},
	StateRejected:   {Label: "Rejected", ClassName: "bg-red-100 text-red-800 border-red-200"},
	StatePending:    {Label: "Pending", ClassName: "bg-gray-100 text-gray-700 border-gray-200"},
}

// StageStatusDisplay returns the label and CSS classes for state, falling back
// to the pending entry for anything non-canonical.
func StageStatusDisplay(state StageState) StatusDisplay {
	if d, ok := statusDisplays[state]; ok {
		return d
	}
	return statusDisplays[StatePending]
}
