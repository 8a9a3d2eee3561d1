// Package handler HTTP 接入层
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/exchange/orderbook/internal/book"
	"github.com/exchange/orderbook/internal/engine"
	"github.com/exchange/orderbook/internal/ledger"
	"github.com/exchange/orderbook/pkg/auth"
	xerrors "github.com/exchange/orderbook/pkg/errors"
	"github.com/exchange/orderbook/pkg/logger"
	"github.com/exchange/orderbook/pkg/response"
)

// Credentials 登录凭据（来自配置）
type Credentials struct {
	Username string
	Password string
}

// Handler 订单簿 HTTP 处理器
type Handler struct {
	engine *engine.Engine
	tokens *auth.TokenManager
	creds  Credentials
	log    *logger.Logger
}

// New 创建处理器
func New(eng *engine.Engine, tokens *auth.TokenManager, creds Credentials, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.New("handler", nil)
	}
	return &Handler{
		engine: eng,
		tokens: tokens,
		creds:  creds,
		log:    log,
	}
}

// RegisterRoutes 注册 API 路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/login", h.handleLogin)
	mux.HandleFunc("/api/v1/orders", h.requireAuth(h.handleListOrders))
	mux.HandleFunc("/api/v1/orders/limit", h.requireAuth(h.handlePlaceLimitOrder))
	mux.HandleFunc("/api/v1/orders/open", h.requireAuth(h.handleOpenOrders))
	mux.HandleFunc("/api/v1/orders/", h.requireAuth(h.handleGetOrder))
	mux.HandleFunc("/api/v1/orderbook", h.requireAuth(h.handleOrderBook))
	mux.HandleFunc("/api/v1/trades", h.requireAuth(h.handleTrades))
}

// requireAuth 鉴权中间件，校验 Bearer 令牌
func (h *Handler) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			response.WriteErrorCode(w, r, xerrors.CodeUnauthenticated, "missing bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if _, err := h.tokens.Verify(token); err != nil {
			response.WriteErrorCode(w, r, xerrors.CodeUnauthenticated, "invalid or expired token")
			return
		}
		next(w, r)
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin 登录换取访问令牌
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "invalid request body")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.creds.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.creds.Password)) == 1
	if !userOK || !passOK {
		response.WriteErrorCode(w, r, xerrors.CodeUnauthenticated, "invalid credentials")
		return
	}

	token, err := h.tokens.Issue(req.Username)
	if err != nil {
		h.log.WithError(err).Error("issue token failed")
		response.WriteErrorCode(w, r, xerrors.CodeInternal, "failed to issue token")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

type placeLimitOrderRequest struct {
	Side            string `json:"side"`
	Quantity        string `json:"quantity"`
	Price           string `json:"price"`
	Pair            string `json:"pair"`
	CustomerOrderID string `json:"customerOrderId"`
	TimeInForce     string `json:"timeInForce"`
}

// handlePlaceLimitOrder 提交限价单
func (h *Handler) handlePlaceLimitOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}

	var req placeLimitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidOrderParameters, "invalid price")
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidOrderParameters, "invalid quantity")
		return
	}

	orderID, err := h.engine.SubmitLimitOrder(engine.SubmitOrder{
		Side:            req.Side,
		Pair:            req.Pair,
		Price:           price,
		Quantity:        quantity,
		CustomerOrderID: req.CustomerOrderID,
		TimeInForce:     req.TimeInForce,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{"orderId": orderID})
}

// orderView 单笔订单响应
type orderView struct {
	OrderID           string `json:"orderId"`
	CustomerOrderID   string `json:"customerOrderId"`
	Pair              string `json:"currencyPair"`
	Side              string `json:"side"`
	Price             string `json:"price"`
	OriginalQuantity  string `json:"originalQuantity"`
	RemainingQuantity string `json:"remainingQuantity"`
	FilledPercentage  string `json:"filledPercentage"`
	Status            string `json:"status"`
	TimeInForce       string `json:"timeInForce"`
	CreatedAt         string `json:"createdAt"`
	UpdatedAt         string `json:"updatedAt"`
}

// handleGetOrder 按系统订单号查询订单
func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}

	orderID := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
	if orderID == "" || strings.Contains(orderID, "/") {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "invalid order id")
		return
	}

	order, err := h.engine.GetOrder(orderID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, toOrderView(order))
}

// handleListOrders 全部订单（含终态），按接纳顺序
func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}

	orders := h.engine.Orders()
	views := make([]orderView, 0, len(orders))
	for _, order := range orders {
		views = append(views, toOrderView(order))
	}
	response.WriteJSON(w, http.StatusOK, views)
}

// handleOpenOrders 挂单列表
func (h *Handler) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}
	response.WriteJSON(w, http.StatusOK, h.engine.OpenOrders())
}

// levelView 订单簿档位响应
type levelView struct {
	Side       string `json:"side"`
	Quantity   string `json:"quantity"`
	Price      string `json:"price"`
	Pair       string `json:"currencyPair"`
	OrderCount int    `json:"orderCount"`
}

// orderBookResponse 订单簿快照响应
type orderBookResponse struct {
	Asks           []levelView `json:"Asks"`
	Bids           []levelView `json:"Bids"`
	LastChange     string      `json:"LastChange"`
	SequenceNumber int64       `json:"SequenceNumber"`
}

// handleOrderBook 订单簿聚合快照
func (h *Handler) handleOrderBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}

	snapshot := h.engine.OrderBookSnapshot()
	pair := h.engine.Pair()

	resp := orderBookResponse{
		Asks:           toLevelViews(snapshot.Asks, "sell", pair),
		Bids:           toLevelViews(snapshot.Bids, "buy", pair),
		SequenceNumber: snapshot.SequenceNumber,
	}
	if !snapshot.LastChange.IsZero() {
		resp.LastChange = snapshot.LastChange.UTC().Format(timeLayout)
	}

	response.WriteJSON(w, http.StatusOK, resp)
}

// handleTrades 成交历史，先发生的在前
func (h *Handler) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.WriteErrorCode(w, r, xerrors.CodeInvalidRequest, "method not allowed")
		return
	}
	response.WriteJSON(w, http.StatusOK, h.engine.Trades())
}

// writeEngineError 引擎错误透传为结构化响应
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var xerr *xerrors.Error
	if e, ok := err.(*xerrors.Error); ok {
		xerr = e
	} else {
		h.log.WithError(err).Error("unexpected engine error")
		xerr = xerrors.New(xerrors.CodeInternal, "internal error")
	}
	response.WriteError(w, r, xerr)
}

const timeLayout = "2006-01-02T15:04:05.000Z"

func toOrderView(order book.Order) orderView {
	return orderView{
		OrderID:           order.OrderID,
		CustomerOrderID:   order.CustomerOrderID,
		Pair:              order.Pair,
		Side:              order.Side.String(),
		Price:             order.Price.String(),
		OriginalQuantity:  order.OrigQty.String(),
		RemainingQuantity: order.RemainingQty.String(),
		FilledPercentage:  ledger.FilledPercentage(order.OrigQty, order.RemainingQty),
		Status:            order.Status.String(),
		TimeInForce:       order.TimeInForce,
		CreatedAt:         order.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:         order.UpdatedAt.UTC().Format(timeLayout),
	}
}

func toLevelViews(levels []book.LevelView, side, pair string) []levelView {
	out := make([]levelView, 0, len(levels))
	for _, level := range levels {
		out = append(out, levelView{
			Side:       side,
			Quantity:   level.Quantity.String(),
			Price:      level.Price.String(),
			Pair:       pair,
			OrderCount: level.Orders,
		})
	}
	return out
}
