package api

// CreateMarketRequest creates a market over an unordered asset pair.
// Assets are hex addresses; the native coin uses the 0xEeee...EEeE
// sentinel.
type CreateMarketRequest struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

type CreateMarketResponse struct {
	MarketID uint64 `json:"marketId"`
}

// CreateOrderRequest places an order. Prices and amounts are decimal
// strings in wad (18-decimal) units. Value is the native coin attached
// to the call; required to equal amount when the offered asset is
// native.
type CreateOrderRequest struct {
	Address        string `json:"address"`
	MarketID       uint64 `json:"marketId"`
	Price          string `json:"price"`
	Amount         string `json:"amount"`
	Side           string `json:"side"` // "buy" | "sell"
	Kind           string `json:"kind"` // "limit" | "stop" | "market"
	GuardOrTrigger string `json:"guardOrTrigger"`
	Value          string `json:"value"`
}

type CreateOrderResponse struct {
	OrderID uint64 `json:"orderId"`
}

type CancelOrderRequest struct {
	Address string `json:"address"`
	OrderID uint64 `json:"orderId"`
}

// MarketInfo describes one market in list/detail responses.
type MarketInfo struct {
	ID       uint64 `json:"id"`
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	MidPrice string `json:"midPrice"`
}

// PriceLevel is one aggregated level of a book snapshot.
type PriceLevel struct {
	Price string `json:"price"`
	Qty   string `json:"qty"`
}

// BookSnapshot is the sorted book of one market, best levels first.
type BookSnapshot struct {
	MarketID  uint64       `json:"marketId"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// BookUpdate is the WebSocket push sent after every book change, on
// channel "book:{marketId}".
type BookUpdate struct {
	Type      string       `json:"type"`
	MarketID  uint64       `json:"marketId"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	MidPrice  string       `json:"midPrice"`
	Timestamp int64        `json:"timestamp"`
}

// WSSubscribeRequest is the client -> server subscription envelope.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
