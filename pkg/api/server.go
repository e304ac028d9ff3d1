// Package api exposes the exchange over REST and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/holiman/uint256"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/obdex/orderblock/pkg/exchange/engine"
	"github.com/obdex/orderblock/pkg/exchange/market"
	"github.com/obdex/orderblock/pkg/exchange/order"
)

// Server handles REST API and WebSocket connections over one exchange.
// Handlers that mutate state serialize through mu, so concurrent HTTP
// requests queue instead of tripping the engine's reentrancy guard.
type Server struct {
	mu     sync.Mutex
	ex     *engine.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger

	allowedOrigins []string
}

// NewServer creates a new API server.
func NewServer(ex *engine.Exchange, log *zap.Logger, allowedOrigins []string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		ex:             ex,
		router:         mux.NewRouter(),
		hub:            NewHub(log),
		log:            log.Sugar(),
		allowedOrigins: allowedOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market endpoints
	api.HandleFunc("/markets", s.handleCreateMarket).Methods("POST")
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}/price", s.handleGetPrice).Methods("GET")
	api.HandleFunc("/markets/{id}/book", s.handleGetBook).Methods("GET")

	// Order endpoints
	api.HandleFunc("/orders", s.handleCreateOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/next", s.handleNextOrderID).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server and blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	base, ok := parseAddress(req.Base)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid base asset", req.Base)
		return
	}
	quote, ok := parseAddress(req.Quote)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid quote asset", req.Quote)
		return
	}

	s.mu.Lock()
	id, err := s.ex.CreateMarket(base, quote)
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, CreateMarketResponse{MarketID: id})
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.ex.Markets()
	out := make([]MarketInfo, len(markets))
	for i, m := range markets {
		out[i] = MarketInfo{
			ID:       m.ID,
			Base:     m.Base.Hex(),
			Quote:    m.Quote.Hex(),
			MidPrice: m.MidPrice().Dec(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	price, err := s.ex.GetPrice(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"price": price.Dec()})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid market id", "")
		return
	}
	m, err := s.ex.Market(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, snapshot(m))
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	addr, ok := parseAddress(req.Address)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}
	side, kind, err := parseSideKind(req.Side, req.Kind)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order", err.Error())
		return
	}
	price, err := parseWad(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", err.Error())
		return
	}
	amount, err := parseWad(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return
	}
	guard, err := parseWad(req.GuardOrTrigger)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid guardOrTrigger", err.Error())
		return
	}
	value, err := parseWad(req.Value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid value", err.Error())
		return
	}

	s.mu.Lock()
	orderID, err := s.ex.CreateOrder(addr, req.MarketID, price, amount, side, kind, guard, value)
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastBook(req.MarketID)
	respondJSON(w, CreateOrderResponse{OrderID: orderID})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", req.Address)
		return
	}

	view, err := s.ex.Order(req.OrderID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.mu.Lock()
	err = s.ex.CancelOrder(addr, req.OrderID)
	s.mu.Unlock()
	if err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastBook(view.MarketID)
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid order id", "")
		return
	}
	view, err := s.ex.Order(id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, view)
}

func (s *Server) handleNextOrderID(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]uint64{"nextId": s.ex.FreeOrderID()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast
// ==============================

// broadcastBook pushes the current book snapshot of a market to all
// subscribers of its channel.
func (s *Server) broadcastBook(marketID uint64) {
	m, err := s.ex.Market(marketID)
	if err != nil {
		return
	}
	snap := snapshot(m)
	update := BookUpdate{
		Type:      "book",
		MarketID:  marketID,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		MidPrice:  m.MidPrice().Dec(),
		Timestamp: snap.Timestamp,
	}
	s.hub.BroadcastToChannel(fmt.Sprintf("book:%d", marketID), update)
}

func snapshot(m *market.Market) BookSnapshot {
	bids := make([]PriceLevel, 0)
	for _, l := range m.Bids.Levels() {
		bids = append(bids, PriceLevel{Price: l.Price.Dec(), Qty: l.Qty.Dec()})
	}
	asks := make([]PriceLevel, 0)
	for _, l := range m.Asks.Levels() {
		asks = append(asks, PriceLevel{Price: l.Price.Dec(), Qty: l.Qty.Dec()})
	}
	return BookSnapshot{
		MarketID:  m.ID,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ==============================
// Helper Functions
// ==============================

func pathID(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseWad parses a decimal wad string; empty means zero.
func parseWad(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("not a decimal amount: %q", s)
	}
	return v, nil
}

func parseSideKind(sideStr, kindStr string) (order.Side, order.Kind, error) {
	var side order.Side
	switch sideStr {
	case "buy":
		side = order.Buy
	case "sell":
		side = order.Sell
	default:
		return 0, 0, fmt.Errorf("unknown side %q", sideStr)
	}

	var kind order.Kind
	switch kindStr {
	case "limit":
		kind = order.Limit
	case "stop":
		kind = order.Stop
	case "market":
		kind = order.Market
	default:
		return 0, 0, fmt.Errorf("unknown kind %q", kindStr)
	}
	return side, kind, nil
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondEngineError maps the engine's sentinel errors onto HTTP codes.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrMarketNotFound), errors.Is(err, engine.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrPairExists), errors.Is(err, engine.ErrAlreadyClosed):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInsufficientBalance),
		errors.Is(err, engine.ErrInsufficientAllowance),
		errors.Is(err, engine.ErrNotEnoughOrders),
		errors.Is(err, engine.ErrPriceGuardViolation),
		errors.Is(err, engine.ErrBadNativeValue),
		errors.Is(err, engine.ErrInvalidOrder):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrReentrantCall):
		status = http.StatusConflict
	}
	respondError(w, status, err.Error(), "")
}
