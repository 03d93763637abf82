package moves

import "github.com/prometheus/client_golang/prometheus"

var (
	movesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_moves_total",
			Help: "Task moves by outcome",
		},
		[]string{"outcome"},
	)
	moveFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_move_failures_total",
			Help: "Rolled back task moves by failure reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(movesTotal)
	prometheus.MustRegister(moveFailures)
}
