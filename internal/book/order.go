package book

import (
	"container/list"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side int

const (
	SideBuy  Side = 1
	SideSell Side = 2
)

// ParseSide 解析订单方向，只接受 BUY / SELL
func ParseSide(s string) (Side, bool) {
	switch s {
	case "BUY":
		return SideBuy, true
	case "SELL":
		return SideSell, true
	default:
		return 0, false
	}
}

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite 对手方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid 是否为合法方向
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Status 订单状态
type Status int

const (
	StatusPlaced          Status = 1
	StatusPartiallyFilled Status = 2
	StatusFilled          Status = 3
)

func (st Status) String() string {
	switch st {
	case StatusPlaced:
		return "PLACED"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal 是否为终态
func (st Status) Terminal() bool {
	return st == StatusFilled
}

// Order 订单
//
// RemainingQty 只减不增，归零的瞬间订单离开订单簿。
// Arrival 为台账分配的接纳序号，是同价位的时间优先级依据；
// 部分成交后重新排队仍按 Arrival 排序，不会丢失优先级。
type Order struct {
	OrderID         string
	CustomerOrderID string
	Pair            string
	Side            Side
	Price           decimal.Decimal
	OrigQty         decimal.Decimal
	RemainingQty    decimal.Decimal
	TimeInForce     string
	Status          Status
	Arrival         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	element *list.Element
	level   *priceLevel
}

// ExecutedQty 已成交数量
func (o *Order) ExecutedQty() decimal.Decimal {
	return o.OrigQty.Sub(o.RemainingQty)
}

// Resting 是否仍在订单簿中
func (o *Order) Resting() bool {
	return o.element != nil
}
