// Package service provides the HTTP handlers for the monetary policy
// engine: bond conversions, epoch allocation, boardroom staking, and the
// read-side status endpoints.
//
// All monetary values use shopspring/decimal — never float64 for money.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pegdao/policy-engine/internal/boardroom"
	"github.com/pegdao/policy-engine/internal/guard"
	"github.com/pegdao/policy-engine/internal/metrics"
	"github.com/pegdao/policy-engine/internal/model"
	"github.com/pegdao/policy-engine/internal/store"
	"github.com/pegdao/policy-engine/internal/token"
	"github.com/pegdao/policy-engine/internal/treasury"
)

// Service handles engine operations over HTTP. The treasury and boardroom
// serialize their own state; the service adds persistence, metrics, and
// broadcasting around each call.
type Service struct {
	treasury  *treasury.Treasury
	boardroom *boardroom.Boardroom
	store     store.Store
	wsHub     *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new engine service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(t *treasury.Treasury, b *boardroom.Boardroom, st store.Store, hub *WSHub) *Service {
	return &Service{
		treasury:  t,
		boardroom: b,
		store:     st,
		wsHub:     hub,
	}
}

// Routes mounts the service's API under /api/v1 on the given router.
func (s *Service) Routes(r chi.Router) {
	r.Post("/bonds/buy", s.BuyBonds)
	r.Post("/bonds/redeem", s.RedeemBonds)
	r.Post("/allocate", s.Allocate)
	r.Post("/boardroom/stake", s.Stake)
	r.Post("/boardroom/withdraw", s.Withdraw)
	r.Post("/boardroom/claim", s.Claim)
	r.Get("/status", s.GetStatus)
	r.Get("/boardroom/{account}", s.GetSeat)
	r.Get("/operations/{account}", s.GetOperations)
	r.Get("/epochs", s.GetEpochs)
	r.Get("/params", s.GetParams)
	r.Put("/params", s.UpdateParam)
	if s.wsHub != nil {
		r.Get("/ws", s.wsHub.HandleWS)
	}
}

// --- Request/Response types ---

// BondRequest is the JSON body for bond purchases and redemptions.
type BondRequest struct {
	Account       string          `json:"account"`
	Amount        decimal.Decimal `json:"amount"`
	ExpectedPrice decimal.Decimal `json:"expected_price"` // slippage guard
}

// AllocateRequest is the JSON body for POST /allocate.
type AllocateRequest struct {
	Caller string `json:"caller"`
}

// StakeRequest is the JSON body for boardroom stake/withdraw.
type StakeRequest struct {
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// ClaimRequest is the JSON body for POST /boardroom/claim.
type ClaimRequest struct {
	Account string `json:"account"`
}

// ClaimResponse reports a paid-out reward.
type ClaimResponse struct {
	Account string          `json:"account"`
	Reward  decimal.Decimal `json:"reward"`
	Epoch   uint64          `json:"epoch"`
}

// ParamRequest is the JSON body for PUT /params. Name selects the
// parameter; Value carries the decimal for scalar parameters. Bootstrap
// and the liquidity incentive additionally take Epochs/Recipients.
type ParamRequest struct {
	Caller     string          `json:"caller"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Epochs     uint64          `json:"epochs,omitempty"`
	Recipients []string        `json:"recipients,omitempty"`
}

// StatusResponse is the engine snapshot returned from GET /status.
type StatusResponse struct {
	Status            string          `json:"status"`
	Epoch             uint64          `json:"epoch"`
	NextEpochPoint    time.Time       `json:"next_epoch_point"`
	Price             decimal.Decimal `json:"price"`
	Reserve           decimal.Decimal `json:"reserve"`
	ContractionLeft   decimal.Decimal `json:"contraction_left"`
	CirculatingSupply decimal.Decimal `json:"circulating_supply"`
	TotalStaked       decimal.Decimal `json:"total_staked"`
}

// SeatResponse is the per-account boardroom snapshot.
type SeatResponse struct {
	Account         string          `json:"account"`
	StakedBalance   decimal.Decimal `json:"staked_balance"`
	Earned          decimal.Decimal `json:"earned"`
	EpochTimerStart uint64          `json:"epoch_timer_start"`
}

// --- HTTP Handlers ---

// BuyBonds handles POST /api/v1/bonds/buy
// Burns pegged asset below peg and mints amount/price bonds.
func (s *Service) BuyBonds(w http.ResponseWriter, r *http.Request) {
	var req BondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.treasury.BuyBonds(req.Account, req.Amount, req.ExpectedPrice)
	metrics.OperationLatency.WithLabelValues(model.OpBuyBonds).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpBuyBonds, "error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(model.OpBuyBonds, "ok").Inc()
	metrics.OraclePrice.Set(res.Price.InexactFloat64())

	s.recordOperation(r, &model.Operation{
		ID:        uuid.New().String(),
		Account:   req.Account,
		Kind:      model.OpBuyBonds,
		Amount:    req.Amount,
		Price:     res.Price,
		Epoch:     res.Epoch,
		Timestamp: time.Now().UTC(),
	})

	slog.Info("bonds purchased",
		"account", req.Account,
		"burned", res.Burned.String(),
		"bonds", res.BondsMinted.String(),
		"price", res.Price.String(),
		"epoch", res.Epoch,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "bonds_purchased",
			Account: req.Account,
			Amount:  res.BondsMinted.String(),
			Price:   res.Price.String(),
			Epoch:   res.Epoch,
		})
	}

	writeJSON(w, http.StatusOK, res)
}

// RedeemBonds handles POST /api/v1/bonds/redeem
// Burns bonds 1:1 for pegged asset above the ceiling.
func (s *Service) RedeemBonds(w http.ResponseWriter, r *http.Request) {
	var req BondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, err := s.treasury.RedeemBonds(req.Account, req.Amount, req.ExpectedPrice)
	metrics.OperationLatency.WithLabelValues(model.OpRedeemBonds).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpRedeemBonds, "error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(model.OpRedeemBonds, "ok").Inc()
	metrics.OraclePrice.Set(res.Price.InexactFloat64())
	metrics.Reserve.Set(s.treasury.Reserve().InexactFloat64())

	s.recordOperation(r, &model.Operation{
		ID:        uuid.New().String(),
		Account:   req.Account,
		Kind:      model.OpRedeemBonds,
		Amount:    req.Amount,
		Price:     res.Price,
		Epoch:     res.Epoch,
		Timestamp: time.Now().UTC(),
	})

	slog.Info("bonds redeemed",
		"account", req.Account,
		"bonds", res.BondsBurned.String(),
		"paid", res.Paid.String(),
		"from_reserve", res.FromReserve.String(),
		"epoch", res.Epoch,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "bonds_redeemed",
			Account: req.Account,
			Amount:  res.Paid.String(),
			Price:   res.Price.String(),
			Epoch:   res.Epoch,
		})
	}

	writeJSON(w, http.StatusOK, res)
}

// Allocate handles POST /api/v1/allocate
// Runs one treasury epoch: price read, optional expansion, epoch advance.
func (s *Service) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	alloc, err := s.RunAllocation(r.Context(), req.Caller)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alloc)
}

// RunAllocation executes one treasury epoch and records the outcome:
// metrics, operation + epoch rows, log line, WS broadcast. Shared by the
// HTTP handler and the epoch scheduler.
func (s *Service) RunAllocation(ctx context.Context, caller string) (treasury.Allocation, error) {
	start := time.Now()
	alloc, err := s.treasury.AllocateSeigniorage(caller)
	metrics.OperationLatency.WithLabelValues(model.OpAllocate).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpAllocate, "error").Inc()
		return treasury.Allocation{}, err
	}
	metrics.OperationsTotal.WithLabelValues(model.OpAllocate, "ok").Inc()
	metrics.CurrentEpoch.Set(float64(s.treasury.Epoch()))
	metrics.Reserve.Set(s.treasury.Reserve().InexactFloat64())
	metrics.OraclePrice.Set(alloc.Price.InexactFloat64())

	if err := s.store.InsertEpochRecord(ctx, &model.EpochRecord{
		Epoch:       alloc.Epoch,
		Price:       alloc.Price,
		Expanded:    alloc.Expanded,
		ToFund:      alloc.ToFund,
		ToLiquidity: alloc.ToLiquidity,
		ToReserve:   alloc.ToReserve,
		ToBoardroom: alloc.ToBoardroom,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		slog.Error("persist epoch record failed", "epoch", alloc.Epoch, "err", err)
	}
	if err := s.store.InsertOperation(ctx, &model.Operation{
		ID:        uuid.New().String(),
		Account:   caller,
		Kind:      model.OpAllocate,
		Amount:    alloc.Expanded,
		Price:     alloc.Price,
		Epoch:     alloc.Epoch,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		slog.Error("persist operation failed", "kind", model.OpAllocate, "err", err)
	}

	slog.Info("epoch allocated",
		"epoch", alloc.Epoch,
		"price", alloc.Price.String(),
		"expanded", alloc.Expanded.String(),
		"to_fund", alloc.ToFund.String(),
		"to_reserve", alloc.ToReserve.String(),
		"to_boardroom", alloc.ToBoardroom.String(),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:        "epoch_allocated",
			Price:       alloc.Price.String(),
			Epoch:       alloc.Epoch,
			Expanded:    alloc.Expanded.String(),
			ToReserve:   alloc.ToReserve.String(),
			ToBoardroom: alloc.ToBoardroom.String(),
		})
	}
	return alloc, nil
}

// Stake handles POST /api/v1/boardroom/stake
func (s *Service) Stake(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err := s.boardroom.Stake(req.Account, req.Amount)
	metrics.OperationLatency.WithLabelValues(model.OpStake).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpStake, "error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(model.OpStake, "ok").Inc()
	metrics.TotalStaked.Set(s.boardroom.TotalStaked().InexactFloat64())

	s.recordOperation(r, &model.Operation{
		ID:        uuid.New().String(),
		Account:   req.Account,
		Kind:      model.OpStake,
		Amount:    req.Amount,
		Price:     decimal.Zero,
		Epoch:     s.treasury.Epoch(),
		Timestamp: time.Now().UTC(),
	})

	slog.Info("stake deposited", "account", req.Account, "amount", req.Amount.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "staked",
			Account: req.Account,
			Amount:  req.Amount.String(),
			Epoch:   s.treasury.Epoch(),
		})
	}

	writeJSON(w, http.StatusOK, SeatResponse{
		Account:         req.Account,
		StakedBalance:   s.boardroom.StakedBalance(req.Account),
		Earned:          s.boardroom.Earned(req.Account),
		EpochTimerStart: s.boardroom.SeatOf(req.Account).EpochTimerStart,
	})
}

// Withdraw handles POST /api/v1/boardroom/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req StakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	err := s.boardroom.Withdraw(req.Account, req.Amount)
	metrics.OperationLatency.WithLabelValues(model.OpWithdraw).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpWithdraw, "error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(model.OpWithdraw, "ok").Inc()
	metrics.TotalStaked.Set(s.boardroom.TotalStaked().InexactFloat64())

	s.recordOperation(r, &model.Operation{
		ID:        uuid.New().String(),
		Account:   req.Account,
		Kind:      model.OpWithdraw,
		Amount:    req.Amount,
		Price:     decimal.Zero,
		Epoch:     s.treasury.Epoch(),
		Timestamp: time.Now().UTC(),
	})

	slog.Info("stake withdrawn", "account", req.Account, "amount", req.Amount.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "withdrawn",
			Account: req.Account,
			Amount:  req.Amount.String(),
			Epoch:   s.treasury.Epoch(),
		})
	}

	writeJSON(w, http.StatusOK, SeatResponse{
		Account:         req.Account,
		StakedBalance:   s.boardroom.StakedBalance(req.Account),
		Earned:          s.boardroom.Earned(req.Account),
		EpochTimerStart: s.boardroom.SeatOf(req.Account).EpochTimerStart,
	})
}

// Claim handles POST /api/v1/boardroom/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	reward, err := s.boardroom.ClaimReward(req.Account)
	metrics.OperationLatency.WithLabelValues(model.OpClaim).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.OperationsTotal.WithLabelValues(model.OpClaim, "error").Inc()
		writeEngineError(w, err)
		return
	}
	metrics.OperationsTotal.WithLabelValues(model.OpClaim, "ok").Inc()

	epoch := s.treasury.Epoch()
	s.recordOperation(r, &model.Operation{
		ID:        uuid.New().String(),
		Account:   req.Account,
		Kind:      model.OpClaim,
		Amount:    reward,
		Price:     decimal.Zero,
		Epoch:     epoch,
		Timestamp: time.Now().UTC(),
	})

	slog.Info("reward claimed", "account", req.Account, "reward", reward.String())

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "reward_claimed",
			Account: req.Account,
			Amount:  reward.String(),
			Epoch:   epoch,
		})
	}

	writeJSON(w, http.StatusOK, ClaimResponse{Account: req.Account, Reward: reward, Epoch: epoch})
}

// GetStatus handles GET /api/v1/status
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	price, err := s.treasury.GetPrice()
	if err != nil {
		// Status stays readable when the oracle is down; price reads zero.
		slog.Warn("status price read failed", "err", err)
		price = decimal.Zero
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:            s.treasury.Status().String(),
		Epoch:             s.treasury.Epoch(),
		NextEpochPoint:    s.treasury.NextEpochPoint(),
		Price:             price,
		Reserve:           s.treasury.Reserve(),
		ContractionLeft:   s.treasury.ContractionLeft(),
		CirculatingSupply: s.treasury.CirculatingSupply(),
		TotalStaked:       s.boardroom.TotalStaked(),
	})
}

// GetSeat handles GET /api/v1/boardroom/{account}
func (s *Service) GetSeat(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	writeJSON(w, http.StatusOK, SeatResponse{
		Account:         account,
		StakedBalance:   s.boardroom.StakedBalance(account),
		Earned:          s.boardroom.Earned(account),
		EpochTimerStart: s.boardroom.SeatOf(account).EpochTimerStart,
	})
}

// GetOperations handles GET /api/v1/operations/{account}
func (s *Service) GetOperations(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	ops, err := s.store.ListOperationsByAccount(r.Context(), account)
	if err != nil {
		writeError(w, "failed to list operations", http.StatusInternalServerError)
		return
	}
	if ops == nil {
		ops = []model.Operation{}
	}
	writeJSON(w, http.StatusOK, ops)
}

// GetEpochs handles GET /api/v1/epochs
func (s *Service) GetEpochs(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListEpochRecords(r.Context())
	if err != nil {
		writeError(w, "failed to list epochs", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []model.EpochRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetParams handles GET /api/v1/params
func (s *Service) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.treasury.Params())
}

// UpdateParam handles PUT /api/v1/params
// Applies one bounded governance parameter update. Operator only.
func (s *Service) UpdateParam(w http.ResponseWriter, r *http.Request) {
	var req ParamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Caller == "" {
		writeError(w, "caller is required", http.StatusBadRequest)
		return
	}

	var err error
	switch req.Name {
	case "price_ceiling":
		err = s.treasury.SetPriceCeiling(req.Caller, req.Value)
	case "bond_depletion_floor_pct":
		err = s.treasury.SetBondDepletionFloorPercent(req.Caller, req.Value)
	case "max_expansion_pct":
		err = s.treasury.SetMaxSupplyExpansionPercent(req.Caller, req.Value)
	case "max_contraction_pct":
		err = s.treasury.SetMaxSupplyContractionPercent(req.Caller, req.Value)
	case "max_debt_ratio_pct":
		err = s.treasury.SetMaxDebtRatioPercent(req.Caller, req.Value)
	case "fund_allocation_rate":
		err = s.treasury.SetFundAllocationRate(req.Caller, req.Value)
	case "seigniorage_floor_pct":
		err = s.treasury.SetSeigniorageExpansionFloorPercent(req.Caller, req.Value)
	case "bootstrap":
		err = s.treasury.SetBootstrap(req.Caller, req.Epochs, req.Value)
	case "liquidity_incentive":
		err = s.treasury.SetLiquidityIncentive(req.Caller, req.Value, req.Recipients, req.Epochs)
	default:
		writeError(w, "unknown parameter: "+req.Name, http.StatusBadRequest)
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	slog.Info("parameter updated", "name", req.Name, "value", req.Value.String())
	writeJSON(w, http.StatusOK, s.treasury.Params())
}

// recordOperation persists an immutable operation record. Persistence
// failure is logged, not surfaced: the engine state already committed.
func (s *Service) recordOperation(r *http.Request, op *model.Operation) {
	if err := s.store.InsertOperation(r.Context(), op); err != nil {
		slog.Error("persist operation failed", "kind", op.Kind, "account", op.Account, "err", err)
	}
}

// writeEngineError maps engine failures to HTTP status codes:
// precondition violations → 409, bad input → 400, authorization → 403.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, boardroom.ErrInvalidAmount),
		errors.Is(err, treasury.ErrParamOutOfRange):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, treasury.ErrNotOperator),
		errors.Is(err, boardroom.ErrNotOperator):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, treasury.ErrNotInitialized),
		errors.Is(err, treasury.ErrMigrated),
		errors.Is(err, treasury.ErrStaleQuote),
		errors.Is(err, treasury.ErrPriceNotBelowPeg),
		errors.Is(err, treasury.ErrPriceNotAboveCeiling),
		errors.Is(err, treasury.ErrEpochNotReady),
		errors.Is(err, treasury.ErrContractionExhausted),
		errors.Is(err, treasury.ErrDebtRatioExceeded),
		errors.Is(err, treasury.ErrInsufficientReserveBalance),
		errors.Is(err, treasury.ErrNoStakers),
		errors.Is(err, boardroom.ErrInsufficientStake),
		errors.Is(err, boardroom.ErrNoStakers),
		errors.Is(err, boardroom.ErrWithdrawLocked),
		errors.Is(err, boardroom.ErrRewardLocked),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, guard.ErrReentry):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
