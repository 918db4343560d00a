package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/cocognome/coco-bet-core/internal/bet-core/dto"
	"github.com/cocognome/coco-bet-core/internal/bet-core/identity"
	"github.com/cocognome/coco-bet-core/internal/bet-core/leaderboard"
	"github.com/cocognome/coco-bet-core/internal/bet-core/ledger"
	"github.com/cocognome/coco-bet-core/internal/bet-core/model"
	"github.com/cocognome/coco-bet-core/internal/bet-core/pool"
	"github.com/cocognome/coco-bet-core/internal/bet-core/pubsub"
	"github.com/cocognome/coco-bet-core/internal/bet-core/rewards"
	"github.com/cocognome/coco-bet-core/internal/bet-core/settle"
	"github.com/cocognome/coco-bet-core/internal/bet-core/store"
	"github.com/cocognome/coco-bet-core/internal/bet-core/ws"
	"github.com/cocognome/coco-bet-core/pkg/contracts/events"
)

// Publisher é a fatia de eventos que o servidor publica após commits.
type Publisher interface {
	PublishStakePlaced(context.Context, events.StakePlaced) error
	PublishMarketResolved(context.Context, events.MarketResolved) error
	PublishBalanceChanged(context.Context, events.BalanceChanged) error
}

// Broadcaster publica payloads no Redis Pub/Sub (feed ao vivo de pool).
type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type Server struct {
	log     *zap.Logger
	ids     *identity.Resolver
	pool    *pool.Accountant
	settler *settle.Engine
	ledger  *ledger.Ledger
	rewards *rewards.Service
	board   *leaderboard.Board
	st      store.Store
	publ    Publisher
	bcast   Broadcaster
	channel string
	hub     *ws.Hub
	opToken string
}

type Deps struct {
	Log         *zap.Logger
	Identity    *identity.Resolver
	Pool        *pool.Accountant
	Settler     *settle.Engine
	Ledger      *ledger.Ledger
	Rewards     *rewards.Service
	Board       *leaderboard.Board
	Store       store.Store
	Publisher   Publisher
	Broadcaster Broadcaster
	Channel     string
	Hub         *ws.Hub
	OpToken     string
}

func NewServer(d Deps) *Server {
	return &Server{
		log:     d.Log,
		ids:     d.Identity,
		pool:    d.Pool,
		settler: d.Settler,
		ledger:  d.Ledger,
		rewards: d.Rewards,
		board:   d.Board,
		st:      d.Store,
		publ:    d.Publisher,
		bcast:   d.Broadcaster,
		channel: d.Channel,
		hub:     d.Hub,
		opToken: d.OpToken,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/markets", s.listMarkets)
	r.Get("/v1/markets/{id}", s.getMarket)
	r.Post("/v1/markets/{id}/stakes", s.placeStake)

	// endpoints de operador
	r.Post("/v1/markets", s.operator(s.createMarket))
	r.Post("/v1/markets/{id}/close", s.operator(s.closeMarket))
	r.Post("/v1/markets/{id}/resolve", s.operator(s.resolveMarket))
	r.Post("/v1/markets/{id}/void", s.operator(s.voidMarket))

	r.Get("/v1/balance", s.getBalance)
	r.Get("/v1/ledger", s.getLedger)
	r.Get("/v1/tasks", s.listTasks)
	r.Post("/v1/tasks/{id}/complete", s.completeTask)
	r.Post("/v1/taps", s.reportTaps)
	r.Get("/v1/leaderboard", s.getLeaderboard)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

// operator protege endpoints administrativos com token compartilhado.
// Auth de verdade fica fora do escopo do core.
func (s *Server) operator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opToken == "" || r.Header.Get("X-Operator-Token") != s.opToken {
			writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: "operator token required", Kind: "forbidden"})
			return
		}
		next(w, r)
	}
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	out, err := s.pool.ListOpenMarkets(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if out == nil {
		out = []model.Market{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getMarket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	accountID := ""
	if tgID := r.URL.Query().Get("telegramId"); tgID != "" {
		acc, err := s.ids.Resolve(r.Context(), tgID, r.URL.Query().Get("username"))
		if err != nil {
			s.writeErr(w, err)
			return
		}
		accountID = acc.ID
	}

	view, err := s.pool.GetMarketView(r.Context(), id, accountID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) placeStake(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")

	var req dto.PlaceStakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "bad_request"})
		return
	}
	if req.Amount <= 0 || req.Side == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload", Kind: "bad_request"})
		return
	}

	acc, err := s.ids.Resolve(r.Context(), req.TelegramID, req.Username)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	res, err := s.pool.PlaceStake(r.Context(), acc.ID, marketID, req.Amount, req.Side)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	// Eventos e broadcast são pós-commit e best-effort: a aposta já está
	// durável; consumidores toleram perda pontual (projeção corrige no
	// próximo evento da conta).
	s.publishStake(r.Context(), acc, res)

	writeJSON(w, http.StatusCreated, dto.StakeResponse{
		StakeID:    res.Stake.ID,
		MarketID:   marketID,
		Amount:     res.Stake.Amount,
		Side:       res.Stake.Side,
		NewBalance: res.NewBalance,
		PoolTotal:  res.PoolTotal,
	})
}

func (s *Server) publishStake(ctx context.Context, acc *model.Account, res *pool.PlaceStakeResult) {
	if s.publ != nil {
		_ = s.publ.PublishStakePlaced(ctx, events.StakePlaced{
			StakeID:   res.Stake.ID,
			AccountID: acc.ID,
			MarketID:  res.Stake.MarketID,
			Side:      res.Stake.Side,
			Amount:    res.Stake.Amount,
			PoolTotal: res.PoolTotal,
		})
		_ = s.publ.PublishBalanceChanged(ctx, events.BalanceChanged{
			AccountID: acc.ID,
			Username:  acc.Username,
			Balance:   res.NewBalance,
			Kind:      string(model.KindStake),
		})
	}
	if s.bcast != nil {
		b, _ := json.Marshal(pubsub.WSUpdate{
			MarketID: res.Stake.MarketID,
			Payload:  map[string]int64{"pool_total": res.PoolTotal},
		})
		if err := s.bcast.Publish(ctx, s.channel, b); err != nil {
			s.log.Warn("pool broadcast publish failed", zap.Error(err))
		}
	}
}

func (s *Server) createMarket(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "bad_request"})
		return
	}
	if req.Title == "" || req.EndTime.IsZero() {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload", Kind: "bad_request"})
		return
	}

	m, err := s.pool.CreateMarket(r.Context(), req.Title, req.Description, req.MinAmount, req.MaxAmount, req.StartTime, req.EndTime)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) closeMarket(w http.ResponseWriter, r *http.Request) {
	if err := s.settler.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"closed"}`))
}

func (s *Server) resolveMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "id")

	var req dto.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "bad_request"})
		return
	}

	res, err := s.settler.Resolve(r.Context(), marketID, req.Outcome, req.FeeBps)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.publishSettlement(r.Context(), res, req.FeeBps)
	writeJSON(w, http.StatusOK, settlementResponse(res))
}

func (s *Server) voidMarket(w http.ResponseWriter, r *http.Request) {
	res, err := s.settler.Void(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, err)
		return
	}

	s.publishSettlement(r.Context(), res, 0)
	writeJSON(w, http.StatusOK, settlementResponse(res))
}

func settlementResponse(res *settle.Result) dto.ResolveResponse {
	var total int64
	for _, e := range res.Entries {
		total += e.Amount
	}
	return dto.ResolveResponse{
		MarketID: res.Market.ID,
		State:    string(res.Market.State),
		Outcome:  res.Market.Outcome,
		Entries:  len(res.Entries),
		Payouts:  total,
		Refunded: res.Refunded,
	}
}

func (s *Server) publishSettlement(ctx context.Context, res *settle.Result, feeBps int64) {
	if s.publ == nil {
		return
	}

	var payoutSum int64
	winners := 0
	for _, e := range res.Entries {
		payoutSum += e.Amount
		if e.Kind == model.KindPayout {
			winners++
		}
	}
	ev := events.MarketResolved{
		MarketID:  res.Market.ID,
		Title:     res.Market.Title,
		Outcome:   res.Market.Outcome,
		State:     string(res.Market.State),
		TotalPool: res.Market.PoolTotal,
		FeeBps:    feeBps,
		Winners:   winners,
		Payouts:   payoutSum,
	}
	if res.Market.SettledAt != nil {
		ev.Ts = *res.Market.SettledAt
	}
	_ = s.publ.PublishMarketResolved(ctx, ev)

	kind := model.KindPayout
	if res.Refunded {
		kind = model.KindRefund
	}
	for accountID, balance := range res.Balances {
		username := ""
		if acc, err := s.st.GetAccount(ctx, accountID); err == nil {
			username = acc.Username
		}
		_ = s.publ.PublishBalanceChanged(ctx, events.BalanceChanged{
			AccountID: accountID,
			Username:  username,
			Balance:   balance,
			Kind:      string(kind),
		})
	}
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ids.Resolve(r.Context(), r.URL.Query().Get("telegramId"), r.URL.Query().Get("username"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	bal, err := s.ledger.Balance(r.Context(), acc.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: acc.ID, Username: acc.Username, Balance: bal})
}

func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	acc, err := s.ids.Resolve(r.Context(), r.URL.Query().Get("telegramId"), r.URL.Query().Get("username"))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	entries, err := s.ledger.Entries(r.Context(), acc.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	accountID := ""
	if tgID := r.URL.Query().Get("telegramId"); tgID != "" {
		acc, err := s.ids.Resolve(r.Context(), tgID, r.URL.Query().Get("username"))
		if err != nil {
			s.writeErr(w, err)
			return
		}
		accountID = acc.ID
	}
	tasks, err := s.rewards.ListTasks(r.Context(), accountID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	var req dto.CompleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "bad_request"})
		return
	}

	acc, err := s.ids.Resolve(r.Context(), req.TelegramID, req.Username)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	newBalance, err := s.rewards.CompleteTask(r.Context(), acc.ID, taskID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if s.publ != nil {
		_ = s.publ.PublishBalanceChanged(r.Context(), events.BalanceChanged{
			AccountID: acc.ID,
			Username:  acc.Username,
			Balance:   newBalance,
			Kind:      string(model.KindReward),
		})
	}
	writeJSON(w, http.StatusOK, dto.TaskCompleteResponse{TaskID: taskID, NewBalance: newBalance})
}

func (s *Server) reportTaps(w http.ResponseWriter, r *http.Request) {
	var req dto.TapsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Kind: "bad_request"})
		return
	}

	acc, err := s.ids.Resolve(r.Context(), req.TelegramID, req.Username)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	earned, newBalance, err := s.rewards.ReportTaps(r.Context(), acc.ID, req.Taps)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	if s.publ != nil {
		_ = s.publ.PublishBalanceChanged(r.Context(), events.BalanceChanged{
			AccountID: acc.ID,
			Username:  acc.Username,
			Balance:   newBalance,
			Kind:      string(model.KindReward),
		})
	}
	writeJSON(w, http.StatusOK, dto.TapsResponse{Earned: earned, NewBalance: newBalance})
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "leaderboard unavailable", Kind: "unavailable"})
		return
	}
	entries, err := s.board.Top(r.Context(), 50)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "leaderboard unavailable", Kind: "unavailable"})
		return
	}
	if entries == nil {
		entries = []leaderboard.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeErr mapeia a taxonomia de erros do core pra status + payload com os
// limites violados. Nada é engolido: o tipo chega distinguível ao cliente.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	var oor *model.OutOfRangeError
	var insf *model.InsufficientFundsError

	switch {
	case errors.As(err, &oor):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error: oor.Error(), Kind: "out_of_range", Min: &oor.Min, Max: &oor.Max,
		})
	case errors.As(err, &insf):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{
			Error: insf.Error(), Kind: "insufficient_funds", Balance: &insf.Balance,
		})
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, model.ErrDuplicateStake):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Kind: "duplicate_stake"})
	case errors.Is(err, model.ErrMarketNotOpen):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Kind: "market_not_open"})
	case errors.Is(err, model.ErrAlreadyResolved):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Kind: "already_resolved"})
	case errors.Is(err, model.ErrAlreadyClaimed):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Kind: "already_claimed"})
	case errors.Is(err, model.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, dto.ErrorResponse{Error: "storage unavailable", Kind: "unavailable"})
	case errors.Is(err, identity.ErrMissingIdentity),
		errors.Is(err, rewards.ErrInvalidTaps),
		errors.Is(err, settle.ErrInvalidFee):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: "bad_request"})
	default:
		s.log.Error("unhandled error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Kind: "internal"})
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
