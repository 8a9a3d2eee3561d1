// Package book 订单簿实现
package book

import (
	"container/list"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSide    = errors.New("invalid order side")
	ErrDuplicateOrder = errors.New("order already in book")
	ErrNotInBook      = errors.New("order not in book")
)

// priceLevel 价格档位，档内订单按 Arrival 升序（时间优先）
type priceLevel struct {
	price  decimal.Decimal
	orders *list.List // *Order
}

// LevelView 价格档位快照
type LevelView struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Orders   int
}

// Book 两侧订单簿
//
// 买盘价格降序（高价优先），卖盘价格升序（低价优先）。
// Book 自身不加锁，所有变更由引擎在独占区内串行执行。
type Book struct {
	Pair string

	bids []*priceLevel
	asks []*priceLevel

	orders map[string]*Order
}

// New 创建订单簿
func New(pair string) *Book {
	return &Book{
		Pair:   pair,
		orders: make(map[string]*Order),
	}
}

// Insert 插入订单到对应方向
func (b *Book) Insert(order *Order) error {
	if order == nil || !order.Side.Valid() {
		return ErrInvalidSide
	}
	if _, exists := b.orders[order.OrderID]; exists {
		return ErrDuplicateOrder
	}

	level := b.findOrCreateLevel(order.Side, order.Price)
	insertByArrival(level, order)
	b.orders[order.OrderID] = order
	return nil
}

// PeekBest 查看最优订单但不移除
func (b *Book) PeekBest(side Side) (*Order, bool) {
	levels := b.sideLevels(side)
	if len(levels) == 0 {
		return nil, false
	}
	front := levels[0].orders.Front()
	if front == nil {
		return nil, false
	}
	return front.Value.(*Order), true
}

// RemoveBest 移除并返回最优订单
func (b *Book) RemoveBest(side Side) (*Order, bool) {
	order, ok := b.PeekBest(side)
	if !ok {
		return nil, false
	}
	b.detach(order)
	return order, true
}

// Reinsert 部分成交后重新确立订单位置
//
// 同价位的排序键始终是 Arrival（原始接纳序号），因此部分成交的
// 订单重新入队后仍排在所有较晚到达的订单之前。
func (b *Book) Reinsert(order *Order) error {
	if order == nil || !order.Side.Valid() {
		return ErrInvalidSide
	}
	if _, exists := b.orders[order.OrderID]; !exists || order.element == nil {
		return ErrNotInBook
	}

	order.level.orders.Remove(order.element)
	level := b.findOrCreateLevel(order.Side, order.Price)
	insertByArrival(level, order)
	b.dropLevelIfEmpty(order.Side)
	return nil
}

// Len 某一侧的活跃订单数
func (b *Book) Len(side Side) int {
	n := 0
	for _, level := range b.sideLevels(side) {
		n += level.orders.Len()
	}
	return n
}

// Levels 某一侧的价格档位聚合快照，按优先级排序
func (b *Book) Levels(side Side) []LevelView {
	levels := b.sideLevels(side)
	views := make([]LevelView, 0, len(levels))
	for _, level := range levels {
		total := decimal.Zero
		for e := level.orders.Front(); e != nil; e = e.Next() {
			total = total.Add(e.Value.(*Order).RemainingQty)
		}
		views = append(views, LevelView{
			Price:    level.price,
			Quantity: total,
			Orders:   level.orders.Len(),
		})
	}
	return views
}

func (b *Book) sideLevels(side Side) []*priceLevel {
	if side == SideBuy {
		return b.bids
	}
	return b.asks
}

// findOrCreateLevel 定位价格档位，不存在则按排序插入新档位
func (b *Book) findOrCreateLevel(side Side, price decimal.Decimal) *priceLevel {
	levels := b.sideLevels(side)

	// 买盘降序，卖盘升序
	better := func(a, b decimal.Decimal) bool {
		if side == SideBuy {
			return a.GreaterThan(b)
		}
		return a.LessThan(b)
	}

	i := 0
	for i < len(levels) {
		cmp := levels[i].price.Cmp(price)
		if cmp == 0 {
			return levels[i]
		}
		if better(price, levels[i].price) {
			break
		}
		i++
	}

	level := &priceLevel{price: price, orders: list.New()}
	levels = append(levels, nil)
	copy(levels[i+1:], levels[i:])
	levels[i] = level
	b.setSideLevels(side, levels)
	return level
}

func (b *Book) setSideLevels(side Side, levels []*priceLevel) {
	if side == SideBuy {
		b.bids = levels
	} else {
		b.asks = levels
	}
}

// detach 将订单摘出订单簿并清理空档位
func (b *Book) detach(order *Order) {
	if order.element == nil || order.level == nil {
		return
	}
	order.level.orders.Remove(order.element)
	order.element = nil
	order.level = nil
	delete(b.orders, order.OrderID)
	b.dropLevelIfEmpty(SideBuy)
	b.dropLevelIfEmpty(SideSell)
}

func (b *Book) dropLevelIfEmpty(side Side) {
	levels := b.sideLevels(side)
	kept := levels[:0]
	for _, level := range levels {
		if level.orders.Len() > 0 {
			kept = append(kept, level)
		}
	}
	b.setSideLevels(side, kept)
}

// insertByArrival 按 Arrival 升序插入档内队列
func insertByArrival(level *priceLevel, order *Order) {
	for e := level.orders.Back(); e != nil; e = e.Prev() {
		if e.Value.(*Order).Arrival < order.Arrival {
			order.element = level.orders.InsertAfter(order, e)
			order.level = level
			return
		}
	}
	order.element = level.orders.PushFront(order)
	order.level = level
}
