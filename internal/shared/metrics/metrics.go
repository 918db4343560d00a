package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores de domínio do bet-core. Registrados no registry default,
// expostos pelo servidor de /metrics de cada serviço.
var (
	StakesPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coco_stakes_placed_total",
		Help: "apostas aceitas",
	})

	StakesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coco_stakes_rejected_total",
		Help: "apostas rejeitadas por motivo",
	}, []string{"reason"})

	MarketsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coco_markets_settled_total",
		Help: "mercados liquidados por estado final",
	}, []string{"state"})

	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coco_ledger_entries_total",
		Help: "lançamentos no ledger por tipo",
	}, []string{"kind"})

	RewardsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coco_rewards_granted_total",
		Help: "recompensas de tarefas e taps concedidas",
	})
)
