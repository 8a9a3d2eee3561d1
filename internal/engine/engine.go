// Package engine 撮合引擎
package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/exchange/orderbook/internal/book"
	"github.com/exchange/orderbook/internal/journal"
	"github.com/exchange/orderbook/internal/ledger"
	"github.com/exchange/orderbook/internal/metrics"
	xerrors "github.com/exchange/orderbook/pkg/errors"
	"github.com/exchange/orderbook/pkg/logger"
)

// externalScale 对外表示的小数位数
const externalScale = 8

const defaultEventBuffer = 10000

// EventType 事件类型
type EventType string

const (
	EventOrderPlaced          EventType = "ORDER_PLACED"
	EventOrderPartiallyFilled EventType = "ORDER_PARTIALLY_FILLED"
	EventOrderFilled          EventType = "ORDER_FILLED"
	EventTradeCreated         EventType = "TRADE_CREATED"
)

// Event 撮合事件
type Event struct {
	Type      EventType   `json:"type"`
	Pair      string      `json:"pair"`
	Seq       int64       `json:"seq"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// OrderEventData 订单事件数据
type OrderEventData struct {
	OrderID         string `json:"orderId"`
	CustomerOrderID string `json:"customerOrderId"`
	Side            string `json:"side"`
	Price           string `json:"price"`
	ExecutedQty     string `json:"executedQty"`
	RemainingQty    string `json:"remainingQty"`
	Status          string `json:"status"`
}

// SubmitOrder 下单请求
//
// Price / Quantity 由传输层反序列化为精确十进制；
// 引擎自身仍然校验方向、正数与客户订单号唯一性，
// 不信任传输层已做过的检查。
type SubmitOrder struct {
	Side            string
	Pair            string
	Price           decimal.Decimal
	Quantity        decimal.Decimal
	CustomerOrderID string
	TimeInForce     string
}

// Snapshot 订单簿快照
type Snapshot struct {
	Asks           []book.LevelView
	Bids           []book.LevelView
	LastChange     time.Time
	SequenceNumber int64
}

// Engine 撮合引擎
//
// 单一品种、单写者模型：所有订单簿变更（插入、撮合、台账与
// 流水更新）都在写锁内作为一个原子单元执行，任何两次提交
// 不会交错。读操作持读锁，只会看到某次提交之前或之后的完整
// 状态，不会看到撮合中途的视图。
type Engine struct {
	pair    string
	book    *book.Book
	ledger  *ledger.Ledger
	journal *journal.Journal
	log     *logger.Logger

	events     chan *Event
	eventSeq   int64
	lastChange time.Time

	mu    sync.RWMutex
	clock func() time.Time
}

// New 创建引擎
func New(pair string, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New("engine", nil)
	}
	return &Engine{
		pair:    pair,
		book:    book.New(pair),
		ledger:  ledger.New(),
		journal: journal.New(),
		log:     log,
		events:  make(chan *Event, defaultEventBuffer),
		clock:   time.Now,
	}
}

// Pair 引擎品种
func (e *Engine) Pair() string {
	return e.pair
}

// Events 事件通道（供下游发布器消费）
func (e *Engine) Events() <-chan *Event {
	return e.events
}

// SubmitLimitOrder 提交限价单
//
// 校验失败同步返回错误且无任何副作用；校验通过则插入订单簿、
// 记入台账并撮合到不动点，整体要么全部生效要么全部拒绝。
func (e *Engine) SubmitLimitOrder(req SubmitOrder) (string, error) {
	side, err := e.validate(&req)
	if err != nil {
		metrics.IncOrdersSubmitted(sideLabel(req.Side), "rejected")
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.clock()

	if !e.ledger.IsCustomerOrderIDUnique(req.CustomerOrderID) {
		metrics.IncOrdersSubmitted(side.String(), "rejected")
		return "", xerrors.ErrDuplicateOrderID
	}

	now := start.UTC()
	order := &book.Order{
		OrderID:         uuid.NewString(),
		CustomerOrderID: req.CustomerOrderID,
		Pair:            e.pair,
		Side:            side,
		Price:           req.Price,
		OrigQty:         req.Quantity,
		RemainingQty:    req.Quantity,
		TimeInForce:     "GTC",
		Status:          book.StatusPlaced,
		Arrival:         e.ledger.NextArrival(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	e.ledger.Record(order)
	if err := e.book.Insert(order); err != nil {
		// Insert 只会因非法方向或重复编号失败，两者都已在上面排除
		e.log.WithError(err).WithField("orderId", order.OrderID).Error("book insert failed")
		metrics.IncOrdersSubmitted(side.String(), "rejected")
		return "", xerrors.New(xerrors.CodeInternal, "book insert failed")
	}

	e.emit(EventOrderPlaced, orderEventData(order))
	e.match(side, now)
	e.lastChange = now
	e.updateDepthMetrics()

	metrics.IncOrdersSubmitted(side.String(), "accepted")
	metrics.ObserveMatchingLatency(e.clock().Sub(start))
	return order.OrderID, nil
}

// validate 边界校验，不产生任何状态变更
func (e *Engine) validate(req *SubmitOrder) (book.Side, error) {
	side, ok := book.ParseSide(req.Side)
	if !ok {
		return 0, xerrors.Newf(xerrors.CodeInvalidOrderParameters, "invalid side: %q", req.Side)
	}
	if req.Pair != "" && req.Pair != e.pair {
		return 0, xerrors.Newf(xerrors.CodeInvalidOrderParameters, "unsupported pair: %q", req.Pair)
	}
	if req.Price.Sign() <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidOrderParameters, "price must be positive")
	}
	if req.Quantity.Sign() <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidOrderParameters, "quantity must be positive")
	}
	if req.Price.Exponent() < -externalScale || req.Quantity.Exponent() < -externalScale {
		return 0, xerrors.Newf(xerrors.CodeInvalidOrderParameters, "at most %d decimal places allowed", externalScale)
	}
	if strings.TrimSpace(req.CustomerOrderID) == "" {
		return 0, xerrors.New(xerrors.CodeInvalidOrderParameters, "customer order id required")
	}
	// 仅支持 GTC 语义
	if req.TimeInForce != "" && req.TimeInForce != "GTC" {
		return 0, xerrors.Newf(xerrors.CodeInvalidOrderParameters, "unsupported time in force: %q", req.TimeInForce)
	}
	return side, nil
}

// match 撮合到不动点
//
// 每轮要么消除一笔订单要么缩减其剩余量，循环必然终止。
// 成交价始终取被动方（先于本轮撮合驻留在簿中的一方）价格。
func (e *Engine) match(takerSide book.Side, now time.Time) {
	for {
		bid, ok := e.book.PeekBest(book.SideBuy)
		if !ok {
			return
		}
		ask, ok := e.book.PeekBest(book.SideSell)
		if !ok {
			return
		}
		if bid.Price.LessThan(ask.Price) {
			return
		}

		qty := decimal.Min(bid.RemainingQty, ask.RemainingQty)
		if qty.Sign() <= 0 {
			// 防御性检查：簿内不应存在剩余量为零的订单
			e.log.Errorf("non-positive match quantity, aborting pass", map[string]interface{}{
				"bidOrderId": bid.OrderID,
				"askOrderId": ask.OrderID,
				"quantity":   qty.String(),
			})
			metrics.IncInternalInconsistency()
			return
		}

		maker, taker := ask, bid
		if takerSide == book.SideSell {
			maker, taker = bid, ask
		}

		trade := journal.Trade{
			TradeID:        uuid.NewString(),
			Pair:           e.pair,
			Price:          maker.Price,
			Quantity:       qty.Truncate(externalScale),
			QuoteVolume:    maker.Price.Mul(qty).Truncate(externalScale),
			TakerSide:      takerSide.String(),
			SequenceNumber: e.journal.NextSequence(),
			TradedAt:       now,
			MakerOrderID:   maker.OrderID,
			TakerOrderID:   taker.OrderID,
		}
		e.journal.Append(trade)
		e.emit(EventTradeCreated, trade)
		metrics.IncTradesCreated(e.pair)

		// 内部记账使用未截断的差值，不累积舍入误差
		e.settle(bid, qty, now)
		e.settle(ask, qty, now)
	}
}

// settle 按成交量更新一侧订单的剩余量、状态与簿内位置
func (e *Engine) settle(order *book.Order, qty decimal.Decimal, now time.Time) {
	order.RemainingQty = order.RemainingQty.Sub(qty)

	if order.RemainingQty.Sign() == 0 {
		e.ledger.MarkFilled(order, now)
		removed, ok := e.book.RemoveBest(order.Side)
		if !ok || removed != order {
			e.log.WithField("orderId", order.OrderID).Error("filled order was not best of book")
			metrics.IncInternalInconsistency()
		}
		e.emit(EventOrderFilled, orderEventData(order))
		return
	}

	e.ledger.MarkPartiallyFilled(order, now)
	if err := e.book.Reinsert(order); err != nil {
		e.log.WithError(err).WithField("orderId", order.OrderID).Error("reinsert after partial fill failed")
		metrics.IncInternalInconsistency()
	}
	e.emit(EventOrderPartiallyFilled, orderEventData(order))
}

// GetOrder 查询订单（返回副本）
func (e *Engine) GetOrder(orderID string) (book.Order, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	order, ok := e.ledger.Get(orderID)
	if !ok {
		return book.Order{}, xerrors.ErrOrderNotFound
	}
	return *order, nil
}

// IsCustomerOrderIDUnique 客户订单号是否可用
func (e *Engine) IsCustomerOrderIDUnique(customerOrderID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.IsCustomerOrderIDUnique(customerOrderID)
}

// Orders 全部订单快照
func (e *Engine) Orders() []book.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.Orders()
}

// OpenOrders 挂单快照
func (e *Engine) OpenOrders() []ledger.OpenOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.OpenOrders()
}

// Trades 成交历史快照，先发生的在前
func (e *Engine) Trades() []journal.Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.journal.Trades()
}

// OrderBookSnapshot 订单簿聚合快照
//
// SequenceNumber 为快照时刻的成交流水序列号，可用于判断新旧。
func (e *Engine) OrderBookSnapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return Snapshot{
		Asks:           e.book.Levels(book.SideSell),
		Bids:           e.book.Levels(book.SideBuy),
		LastChange:     e.lastChange,
		SequenceNumber: e.journal.LastSequence(),
	}
}

func (e *Engine) emit(eventType EventType, data interface{}) {
	e.eventSeq++
	event := &Event{
		Type:      eventType,
		Pair:      e.pair,
		Seq:       e.eventSeq,
		Timestamp: e.clock().UnixNano(),
		Data:      data,
	}

	// 撮合不能被下游发布阻塞，缓冲满时丢弃并计数
	select {
	case e.events <- event:
	default:
		metrics.IncEventsDropped()
	}
}

func (e *Engine) updateDepthMetrics() {
	metrics.SetOrderbookDepth(e.pair, "buy", float64(e.book.Len(book.SideBuy)))
	metrics.SetOrderbookDepth(e.pair, "sell", float64(e.book.Len(book.SideSell)))
}

// sideLabel 指标标签只使用闭集取值，避免标签基数失控
func sideLabel(side string) string {
	if _, ok := book.ParseSide(side); ok {
		return side
	}
	return "INVALID"
}

func orderEventData(order *book.Order) *OrderEventData {
	return &OrderEventData{
		OrderID:         order.OrderID,
		CustomerOrderID: order.CustomerOrderID,
		Side:            order.Side.String(),
		Price:           order.Price.String(),
		ExecutedQty:     order.ExecutedQty().String(),
		RemainingQty:    order.RemainingQty.String(),
		Status:          order.Status.String(),
	}
}
