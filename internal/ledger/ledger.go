// Package ledger 订单台账与挂单视图
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/exchange/orderbook/internal/book"
)

// filledPercentageScale 对外展示的成交百分比小数位
const filledPercentageScale = 2

// OpenOrder 挂单视图（剩余数量 > 0 的订单投影）
type OpenOrder struct {
	OrderID           string          `json:"orderId"`
	CustomerOrderID   string          `json:"customerOrderId"`
	Pair              string          `json:"currencyPair"`
	Side              string          `json:"side"`
	Price             decimal.Decimal `json:"price"`
	OriginalQuantity  decimal.Decimal `json:"originalQuantity"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	FilledPercentage  string          `json:"filledPercentage"`
	Status            string          `json:"status"`
	TimeInForce       string          `json:"timeInForce"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Ledger 订单台账
//
// 持有每一笔被接纳订单的规范记录。订单永不物理删除：
// FILLED 之后仍可查询，但会离开挂单视图。
// Ledger 自身不加锁，所有变更由引擎在独占区内串行执行。
type Ledger struct {
	orders      map[string]*book.Order // orderID -> 订单
	customerIDs map[string]string      // customerOrderID -> orderID
	byArrival   []*book.Order          // 接纳顺序
	open        map[string]*book.Order // 挂单投影
	arrival     int64
}

// New 创建台账
func New() *Ledger {
	return &Ledger{
		orders:      make(map[string]*book.Order),
		customerIDs: make(map[string]string),
		open:        make(map[string]*book.Order),
	}
}

// NextArrival 分配接纳序号（时间优先级依据）
func (l *Ledger) NextArrival() int64 {
	l.arrival++
	return l.arrival
}

// IsCustomerOrderIDUnique 客户订单号是否未被使用过
//
// 查询覆盖全部历史（含 FILLED 订单），编号永不复用。
func (l *Ledger) IsCustomerOrderIDUnique(customerOrderID string) bool {
	_, used := l.customerIDs[customerOrderID]
	return !used
}

// Record 记录新接纳的订单（状态应为 PLACED）
func (l *Ledger) Record(order *book.Order) {
	l.orders[order.OrderID] = order
	l.customerIDs[order.CustomerOrderID] = order.OrderID
	l.byArrival = append(l.byArrival, order)
	l.open[order.OrderID] = order
}

// MarkPartiallyFilled 标记部分成交，挂单视图保留该订单
func (l *Ledger) MarkPartiallyFilled(order *book.Order, now time.Time) {
	order.Status = book.StatusPartiallyFilled
	order.UpdatedAt = now
}

// MarkFilled 标记完全成交（终态），并移出挂单视图
func (l *Ledger) MarkFilled(order *book.Order, now time.Time) {
	order.Status = book.StatusFilled
	order.UpdatedAt = now
	delete(l.open, order.OrderID)
}

// Get 按订单号查询
func (l *Ledger) Get(orderID string) (*book.Order, bool) {
	order, ok := l.orders[orderID]
	return order, ok
}

// Orders 全部订单快照副本，按接纳顺序
func (l *Ledger) Orders() []book.Order {
	out := make([]book.Order, 0, len(l.byArrival))
	for _, order := range l.byArrival {
		out = append(out, *order)
	}
	return out
}

// OpenOrders 挂单视图快照，按接纳顺序
func (l *Ledger) OpenOrders() []OpenOrder {
	out := make([]OpenOrder, 0, len(l.open))
	for _, order := range l.byArrival {
		if _, ok := l.open[order.OrderID]; !ok {
			continue
		}
		out = append(out, toOpenOrder(order))
	}
	return out
}

// Len 历史订单总数
func (l *Ledger) Len() int {
	return len(l.orders)
}

func toOpenOrder(order *book.Order) OpenOrder {
	return OpenOrder{
		OrderID:           order.OrderID,
		CustomerOrderID:   order.CustomerOrderID,
		Pair:              order.Pair,
		Side:              order.Side.String(),
		Price:             order.Price,
		OriginalQuantity:  order.OrigQty,
		RemainingQuantity: order.RemainingQty,
		FilledPercentage:  FilledPercentage(order.OrigQty, order.RemainingQty),
		Status:            order.Status.String(),
		TimeInForce:       order.TimeInForce,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

// FilledPercentage 成交百分比 = 100 × (1 − remaining/original)
func FilledPercentage(original, remaining decimal.Decimal) string {
	if original.IsZero() {
		return decimal.Zero.StringFixed(filledPercentageScale)
	}
	executed := original.Sub(remaining)
	pct := executed.Mul(decimal.NewFromInt(100)).DivRound(original, filledPercentageScale+2)
	return pct.Truncate(filledPercentageScale).StringFixed(filledPercentageScale)
}
