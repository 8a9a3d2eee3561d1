// Package journal 成交流水
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交记录，创建后不可变更
type Trade struct {
	TradeID        string          `json:"id"`
	Pair           string          `json:"currencyPair"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	QuoteVolume    decimal.Decimal `json:"quoteVolume"`
	TakerSide      string          `json:"takerSide"`
	SequenceNumber int64           `json:"sequenceId"`
	TradedAt       time.Time       `json:"tradedAt"`

	MakerOrderID string `json:"-"`
	TakerOrderID string `json:"-"`
}

// Journal 只追加的成交账本
//
// 序列号是全局单调递增的唯一成交排序依据，永不回退或复用。
// Journal 自身不加锁，写入由引擎在独占区内串行执行。
type Journal struct {
	trades []Trade
	seq    int64
}

// New 创建成交账本
func New() *Journal {
	return &Journal{}
}

// NextSequence 分配下一个序列号（从 1 开始）
func (j *Journal) NextSequence() int64 {
	j.seq++
	return j.seq
}

// LastSequence 当前已分配的最大序列号，未有成交时为 0
func (j *Journal) LastSequence() int64 {
	return j.seq
}

// Append 追加成交记录
func (j *Journal) Append(trade Trade) {
	j.trades = append(j.trades, trade)
}

// Trades 返回成交快照副本，按时间先后（序列号升序）排列
func (j *Journal) Trades() []Trade {
	out := make([]Trade, len(j.trades))
	copy(out, j.trades)
	return out
}

// Len 成交数量
func (j *Journal) Len() int {
	return len(j.trades)
}
