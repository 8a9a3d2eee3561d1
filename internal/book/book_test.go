package book

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newOrder(id string, side Side, price, qty string, arrival int64) *Order {
	return &Order{
		OrderID:         id,
		CustomerOrderID: "c-" + id,
		Pair:            "BTCZAR",
		Side:            side,
		Price:           decimal.RequireFromString(price),
		OrigQty:         decimal.RequireFromString(qty),
		RemainingQty:    decimal.RequireFromString(qty),
		Status:          StatusPlaced,
		Arrival:         arrival,
	}
}

func TestSideConstants(t *testing.T) {
	if SideBuy != 1 {
		t.Fatalf("expected SideBuy=1, got %d", SideBuy)
	}
	if SideSell != 2 {
		t.Fatalf("expected SideSell=2, got %d", SideSell)
	}
}

func TestParseSide(t *testing.T) {
	if side, ok := ParseSide("BUY"); !ok || side != SideBuy {
		t.Fatalf("expected BUY to parse, got %v %v", side, ok)
	}
	if side, ok := ParseSide("SELL"); !ok || side != SideSell {
		t.Fatalf("expected SELL to parse, got %v %v", side, ok)
	}
	for _, s := range []string{"", "buy", "Sell", "HOLD"} {
		if _, ok := ParseSide(s); ok {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell {
		t.Fatalf("expected opposite of buy to be sell")
	}
	if SideSell.Opposite() != SideBuy {
		t.Fatalf("expected opposite of sell to be buy")
	}
}

func TestStatusString(t *testing.T) {
	if StatusPlaced.String() != "PLACED" {
		t.Fatalf("expected PLACED, got %s", StatusPlaced)
	}
	if StatusPartiallyFilled.String() != "PARTIALLY_FILLED" {
		t.Fatalf("expected PARTIALLY_FILLED, got %s", StatusPartiallyFilled)
	}
	if StatusFilled.String() != "FILLED" {
		t.Fatalf("expected FILLED, got %s", StatusFilled)
	}
	if !StatusFilled.Terminal() {
		t.Fatal("expected FILLED to be terminal")
	}
	if StatusPartiallyFilled.Terminal() {
		t.Fatal("expected PARTIALLY_FILLED to be non-terminal")
	}
}

func TestNewBook(t *testing.T) {
	b := New("BTCZAR")
	if b == nil {
		t.Fatal("expected non-nil book")
	}
	if b.Pair != "BTCZAR" {
		t.Fatalf("expected Pair=BTCZAR, got %s", b.Pair)
	}
	if b.Len(SideBuy) != 0 || b.Len(SideSell) != 0 {
		t.Fatal("expected empty book")
	}
}

func TestInsertRejectsInvalidSide(t *testing.T) {
	b := New("BTCZAR")
	order := newOrder("o1", 0, "10000", "1", 1)
	if err := b.Insert(order); err != ErrInvalidSide {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
	if err := b.Insert(nil); err != ErrInvalidSide {
		t.Fatalf("expected ErrInvalidSide for nil order, got %v", err)
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	b := New("BTCZAR")
	order := newOrder("o1", SideBuy, "10000", "1", 1)
	if err := b.Insert(order); err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := b.Insert(order); err != ErrDuplicateOrder {
		t.Fatalf("expected ErrDuplicateOrder, got %v", err)
	}
}

func TestPeekBestPricePriority(t *testing.T) {
	b := New("BTCZAR")
	// 买盘高价优先
	b.Insert(newOrder("b1", SideBuy, "9999", "1", 1))
	b.Insert(newOrder("b2", SideBuy, "10001", "1", 2))
	b.Insert(newOrder("b3", SideBuy, "10000", "1", 3))

	best, ok := b.PeekBest(SideBuy)
	if !ok || best.OrderID != "b2" {
		t.Fatalf("expected best bid b2, got %+v", best)
	}

	// 卖盘低价优先
	b.Insert(newOrder("a1", SideSell, "10003", "1", 4))
	b.Insert(newOrder("a2", SideSell, "10002", "1", 5))
	b.Insert(newOrder("a3", SideSell, "10004", "1", 6))

	best, ok = b.PeekBest(SideSell)
	if !ok || best.OrderID != "a2" {
		t.Fatalf("expected best ask a2, got %+v", best)
	}
}

func TestPeekBestTimePriority(t *testing.T) {
	b := New("BTCZAR")
	b.Insert(newOrder("b2", SideBuy, "10000", "1", 2))
	b.Insert(newOrder("b1", SideBuy, "10000", "1", 1))
	b.Insert(newOrder("b3", SideBuy, "10000", "1", 3))

	// 同价位按接纳顺序出队
	for _, want := range []string{"b1", "b2", "b3"} {
		got, ok := b.RemoveBest(SideBuy)
		if !ok || got.OrderID != want {
			t.Fatalf("expected %s, got %+v", want, got)
		}
	}
	if _, ok := b.PeekBest(SideBuy); ok {
		t.Fatal("expected empty bid side")
	}
}

func TestRemoveBestDropsEmptyLevel(t *testing.T) {
	b := New("BTCZAR")
	b.Insert(newOrder("a1", SideSell, "10000", "1", 1))
	b.Insert(newOrder("a2", SideSell, "10001", "1", 2))

	removed, ok := b.RemoveBest(SideSell)
	if !ok || removed.OrderID != "a1" {
		t.Fatalf("expected a1, got %+v", removed)
	}
	if removed.Resting() {
		t.Fatal("expected removed order to be detached")
	}

	best, ok := b.PeekBest(SideSell)
	if !ok || best.OrderID != "a2" {
		t.Fatalf("expected a2 after removal, got %+v", best)
	}
	if got := len(b.Levels(SideSell)); got != 1 {
		t.Fatalf("expected 1 ask level, got %d", got)
	}
}

func TestReinsertPreservesTimePriority(t *testing.T) {
	b := New("BTCZAR")
	first := newOrder("b1", SideBuy, "10000", "2", 1)
	second := newOrder("b2", SideBuy, "10000", "1", 2)
	b.Insert(first)
	b.Insert(second)

	// 部分成交后重新确立位置，仍排在相同价位的后到订单之前
	first.RemainingQty = decimal.RequireFromString("1")
	if err := b.Reinsert(first); err != nil {
		t.Fatalf("unexpected reinsert error: %v", err)
	}

	got, ok := b.PeekBest(SideBuy)
	if !ok || got.OrderID != "b1" {
		t.Fatalf("expected b1 to keep priority, got %+v", got)
	}
	if got, _ := b.RemoveBest(SideBuy); got.OrderID != "b1" {
		t.Fatalf("expected b1 first out, got %s", got.OrderID)
	}
	if got, _ := b.RemoveBest(SideBuy); got.OrderID != "b2" {
		t.Fatalf("expected b2 second out, got %s", got.OrderID)
	}
}

func TestReinsertRejectsOrderNotInBook(t *testing.T) {
	b := New("BTCZAR")
	order := newOrder("b1", SideBuy, "10000", "1", 1)
	if err := b.Reinsert(order); err != ErrNotInBook {
		t.Fatalf("expected ErrNotInBook, got %v", err)
	}

	b.Insert(order)
	removed, _ := b.RemoveBest(SideBuy)
	if err := b.Reinsert(removed); err != ErrNotInBook {
		t.Fatalf("expected ErrNotInBook after removal, got %v", err)
	}
}

func TestLevelsAggregation(t *testing.T) {
	b := New("BTCZAR")
	b.Insert(newOrder("a1", SideSell, "10000", "1.5", 1))
	b.Insert(newOrder("a2", SideSell, "10000", "0.5", 2))
	b.Insert(newOrder("a3", SideSell, "10002", "3", 3))

	levels := b.Levels(SideSell)
	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(levels))
	}
	if !levels[0].Price.Equal(decimal.RequireFromString("10000")) {
		t.Fatalf("expected best level 10000, got %s", levels[0].Price)
	}
	if !levels[0].Quantity.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("expected aggregated quantity 2, got %s", levels[0].Quantity)
	}
	if levels[0].Orders != 2 {
		t.Fatalf("expected 2 orders at best level, got %d", levels[0].Orders)
	}
	if !levels[1].Price.Equal(decimal.RequireFromString("10002")) {
		t.Fatalf("expected second level 10002, got %s", levels[1].Price)
	}
}

func TestEqualPricesDifferentScaleShareLevel(t *testing.T) {
	b := New("BTCZAR")
	b.Insert(newOrder("b1", SideBuy, "10000", "1", 1))
	b.Insert(newOrder("b2", SideBuy, "10000.00", "1", 2))

	levels := b.Levels(SideBuy)
	if len(levels) != 1 {
		t.Fatalf("expected a single level for equal prices, got %d", len(levels))
	}
	if levels[0].Orders != 2 {
		t.Fatalf("expected 2 orders at level, got %d", levels[0].Orders)
	}
}

func TestLen(t *testing.T) {
	b := New("BTCZAR")
	b.Insert(newOrder("b1", SideBuy, "10000", "1", 1))
	b.Insert(newOrder("b2", SideBuy, "9999", "1", 2))
	b.Insert(newOrder("a1", SideSell, "10001", "1", 3))

	if got := b.Len(SideBuy); got != 2 {
		t.Fatalf("expected 2 bids, got %d", got)
	}
	if got := b.Len(SideSell); got != 1 {
		t.Fatalf("expected 1 ask, got %d", got)
	}
}

func TestExecutedQty(t *testing.T) {
	order := newOrder("o1", SideBuy, "10000", "3", 1)
	order.RemainingQty = decimal.RequireFromString("1.25")
	if !order.ExecutedQty().Equal(decimal.RequireFromString("1.75")) {
		t.Fatalf("expected executed 1.75, got %s", order.ExecutedQty())
	}
}
