package settle

import "github.com/cocognome/coco-bet-core/internal/bet-core/model"

// Payout é o crédito calculado para uma conta na liquidação.
type Payout struct {
	AccountID string
	Amount    int64
	Kind      model.EntryKind // payout ou refund
}

// ComputePayouts aplica a liquidação pari-mutuel sobre os stakes do mercado.
//
// Regras:
//   - vencedores são os stakes com side == outcome;
//   - distributable = totalPool * (10000 - feeBps) / 10000, truncado: a taxa
//     sai do pool inteiro antes da distribuição, garantindo
//     sum(payouts) <= totalPool * (1 - fee) exato;
//   - cada vencedor recebe distributable * stake / winningPool, truncado;
//     o resíduo de arredondamento vai pro maior stake vencedor (empate:
//     mais cedo, depois account id) — determinístico entre implementações;
//   - sem vencedores, todo stake volta pelo valor de face com taxa zero
//     (refund); manter o pool em silêncio seria violação.
//
// refunded indica o caso sem vencedores.
func ComputePayouts(stakes []model.Stake, outcome string, feeBps int64) (payouts []Payout, refunded bool) {
	if len(stakes) == 0 {
		return nil, false
	}

	var totalPool, winningPool int64
	for _, s := range stakes {
		totalPool += s.Amount
		if s.Side == outcome {
			winningPool += s.Amount
		}
	}

	if winningPool == 0 {
		payouts = make([]Payout, 0, len(stakes))
		for _, s := range stakes {
			payouts = append(payouts, Payout{AccountID: s.AccountID, Amount: s.Amount, Kind: model.KindRefund})
		}
		return payouts, true
	}

	// os produtos pool*bps e distributable*stake cabem folgados em int64:
	// estourar exigiria um pool acima de ~9e14 $COCO, ordens de grandeza
	// além do que os limites por aposta dos mercados permitem acumular
	distributable := totalPool * (10000 - feeBps) / 10000

	var distributed int64
	largest := -1
	var largestStake model.Stake
	for _, s := range stakes {
		if s.Side != outcome {
			continue
		}
		amount := distributable * s.Amount / winningPool
		payouts = append(payouts, Payout{AccountID: s.AccountID, Amount: amount, Kind: model.KindPayout})
		distributed += amount

		if largest < 0 || biggerStake(s, largestStake) {
			largest = len(payouts) - 1
			largestStake = s
		}
	}

	// resíduo do truncamento vai pro maior stake vencedor
	if residual := distributable - distributed; residual > 0 && largest >= 0 {
		payouts[largest].Amount += residual
	}
	return payouts, false
}

// RefundAll devolve todo stake pelo valor de face (anulação administrativa).
func RefundAll(stakes []model.Stake) []Payout {
	out := make([]Payout, 0, len(stakes))
	for _, s := range stakes {
		out = append(out, Payout{AccountID: s.AccountID, Amount: s.Amount, Kind: model.KindRefund})
	}
	return out
}

// biggerStake ordena candidatos ao resíduo: maior valor, depois mais cedo,
// depois account id.
func biggerStake(a, b model.Stake) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	if !a.PlacedAt.Equal(b.PlacedAt) {
		return a.PlacedAt.Before(b.PlacedAt)
	}
	return a.AccountID < b.AccountID
}
