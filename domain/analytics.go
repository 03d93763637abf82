package domain

import "github.com/bytedance/sonic"

// AggregateKind names one of the analytics documents served next to the board.
type AggregateKind string

const (
	AggregateTeamOverview          AggregateKind = "team-overview"
	AggregateIndividualPerformance AggregateKind = "individual-performance"
	AggregateProductivityTrends    AggregateKind = "productivity-trends"
	AggregateTeamLeaderboard       AggregateKind = "team-leaderboard"
	AggregateBurnoutAnalysis       AggregateKind = "burnout-analysis"
)

// AggregateKinds lists every analytics document in the order the dashboard loads them.
var AggregateKinds = [...]AggregateKind{
	AggregateTeamOverview,
	AggregateIndividualPerformance,
	AggregateProductivityTrends,
	AggregateTeamLeaderboard,
	AggregateBurnoutAnalysis,
}

// Valid reports whether k is a known analytics document.
func (k AggregateKind) Valid() bool {
	for _, known := range AggregateKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Aggregate is an analytics payload passed through without interpretation.
type Aggregate struct {
	Kind AggregateKind
	Data sonic.NoCopyRawMessage
}

// TeamOverview is computed by the board service from the live task set so
// that counts stay consistent with the board.
type TeamOverview struct {
	TeamSize       int            `json:"team_size"`
	TotalTasks     int            `json:"total_tasks"`
	TasksByStatus  map[Status]int `json:"tasks_by_status"`
	CompletionRate float64        `json:"completion_rate"`
}

// ComputeTeamOverview counts tasks per status. Completion rate is a
// percentage rounded to one decimal.
func ComputeTeamOverview(tasks []Task, teamSize int) TeamOverview {
	ov := TeamOverview{
		TeamSize:      teamSize,
		TotalTasks:    len(tasks),
		TasksByStatus: make(map[Status]int, len(Statuses)),
	}
	for _, s := range Statuses {
		ov.TasksByStatus[s] = 0
	}
	for _, t := range tasks {
		ov.TasksByStatus[t.Status]++
	}
	if len(tasks) > 0 {
		rate := float64(ov.TasksByStatus[StatusDone]) / float64(len(tasks)) * 100
		ov.CompletionRate = float64(int(rate*10+0.5)) / 10
	}
	return ov
}
