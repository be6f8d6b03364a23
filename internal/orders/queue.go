package orders

import (
	"errors"
	"sort"
	"sync"
	"time"

	"lv-tradesim/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrQueuedOrderNotFound = errors.New("queued order not found")

type QueuedOrder struct {
	ID             string
	UserID         string
	Symbol         string
	Side           types.OrderSide
	Units          decimal.Decimal
	Price          decimal.Decimal
	RemainingUnits decimal.Decimal
	Timestamp      time.Time
	StopLoss       *decimal.Decimal
	TakeProfit     *decimal.Decimal
	Expiration     *time.Time
}

// Queue holds transient market orders and resting limit orders. Limit orders
// are ranked per side: buys by descending price, sells by ascending price,
// ties by arrival.
type Queue struct {
	mu     sync.Mutex
	market []QueuedOrder
	limit  []QueuedOrder
	now    func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) prepare(o QueuedOrder) QueuedOrder {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = q.now()
	}
	o.RemainingUnits = o.Units
	return o
}

func (q *Queue) AddLimitOrder(o QueuedOrder) QueuedOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	o = q.prepare(o)
	q.limit = append(q.limit, o)
	q.sortLocked()
	return o
}

func (q *Queue) AddMarketOrder(o QueuedOrder) QueuedOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	o = q.prepare(o)
	q.market = append(q.market, o)
	return o
}

func (q *Queue) sortLocked() {
	sort.SliceStable(q.limit, func(i, j int) bool {
		a, b := q.limit[i], q.limit[j]
		if a.Side != b.Side {
			// keep sides grouped; buys first
			return a.Side == types.OrderSideBuy
		}
		if !a.Price.Equal(b.Price) {
			if a.Side == types.OrderSideBuy {
				return a.Price.GreaterThan(b.Price)
			}
			return a.Price.LessThan(b.Price)
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// ProcessOrder consumes fillUnits from the market or limit order with id and
// removes it once nothing remains.
func (q *Queue) ProcessOrder(id string, fillUnits decimal.Decimal) (QueuedOrder, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if o, ok := consume(&q.market, id, fillUnits); ok {
		return o, nil
	}
	if o, ok := consume(&q.limit, id, fillUnits); ok {
		return o, nil
	}
	return QueuedOrder{}, ErrQueuedOrderNotFound
}

func consume(list *[]QueuedOrder, id string, fillUnits decimal.Decimal) (QueuedOrder, bool) {
	for i := range *list {
		o := &(*list)[i]
		if o.ID != id {
			continue
		}
		if fillUnits.IsPositive() {
			o.RemainingUnits = o.RemainingUnits.Sub(fillUnits)
		}
		out := *o
		if !o.RemainingUnits.IsPositive() {
			*list = append((*list)[:i], (*list)[i+1:]...)
		}
		return out, true
	}
	return QueuedOrder{}, false
}

// ClearExpiredOrders removes and returns limit orders whose expiration is
// before now. Orders without expiration stay.
func (q *Queue) ClearExpiredOrders(now time.Time) []QueuedOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	var expired []QueuedOrder
	kept := q.limit[:0]
	for _, o := range q.limit {
		if o.Expiration != nil && o.Expiration.Before(now) {
			expired = append(expired, o)
			continue
		}
		kept = append(kept, o)
	}
	q.limit = kept
	return expired
}

func (q *Queue) Remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, o := range q.limit {
		if o.ID == id {
			q.limit = append(q.limit[:i], q.limit[i+1:]...)
			return true
		}
	}
	return false
}

// Update applies fn to the resting order with id and re-ranks the book.
func (q *Queue) Update(id string, fn func(o *QueuedOrder)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.limit {
		if q.limit[i].ID == id {
			fn(&q.limit[i])
			q.sortLocked()
			return nil
		}
	}
	return ErrQueuedOrderNotFound
}

func (q *Queue) Get(id string) (QueuedOrder, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, o := range q.limit {
		if o.ID == id {
			return o, true
		}
	}
	for _, o := range q.market {
		if o.ID == id {
			return o, true
		}
	}
	return QueuedOrder{}, false
}

// LimitOrders returns a ranked copy of the resting orders, all symbols when
// symbol is empty.
func (q *Queue) LimitOrders(symbol string) []QueuedOrder {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]QueuedOrder, 0, len(q.limit))
	for _, o := range q.limit {
		if symbol == "" || o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

func (q *Queue) MarketOrderCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.market)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.limit)
}

// RecordMarketFill enters a transient market order, consumes filled units and
// drops whatever is left. Unfilled market volume never rests.
func (q *Queue) RecordMarketFill(userID, symbol string, side types.OrderSide, requested, filled decimal.Decimal) (string, error) {
	o := q.AddMarketOrder(QueuedOrder{UserID: userID, Symbol: symbol, Side: side, Units: requested})
	if _, err := q.ProcessOrder(o.ID, filled); err != nil {
		return "", err
	}
	q.mu.Lock()
	for i, m := range q.market {
		if m.ID == o.ID {
			q.market = append(q.market[:i], q.market[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	return o.ID, nil
}
