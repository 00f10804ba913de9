package market

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cct/internal/money"
)

// VolAndPriNbDecimals declares the volume/price decimal precision a book's
// amounts and prices are quoted at.
type VolAndPriNbDecimals struct {
	Vol uint8
	Pri uint8
}

// OrderBookLine is an externally-supplied depth entry: a signed-by-side
// amount at a price (spec.md §3).
type OrderBookLine struct {
	Amount money.Amount // always nonnegative; sign carried by IsAsk
	Price  money.Amount
	IsAsk  bool
}

var (
	// ErrDuplicatePrice is returned when two lines share a price.
	ErrDuplicatePrice = errors.New("market: duplicate price in order book")
	// ErrBookSidesCrossed is returned when bid/ask sides are not cleanly
	// separated by price, violating "bid prices < ask prices".
	ErrBookSidesCrossed = errors.New("market: bid and ask sides are not separated")
	// ErrEmptyBook is returned by queries that require at least one line.
	ErrEmptyBook = errors.New("market: order book is empty")
	// ErrInsufficientLiquidity is returned when a requested amount exceeds
	// what the book can satisfy.
	ErrInsufficientLiquidity = errors.New("market: insufficient liquidity")
)

// line is a sorted-by-price entry; amount is positive for a bid, negative
// for an ask (spec.md §3: "positive amount = bid, negative amount = ask").
type line struct {
	amount money.Amount // signed, in base currency units
	price  money.Amount // in quote currency units
}

// OrderBook is an immutable snapshot at time `at` of a Market's price
// ladder.
type OrderBook struct {
	mkt           Market
	lines         []line
	decimals      VolAndPriNbDecimals
	highestBidPos int // index of the best (highest-price) bid, or -1
	lowestAskPos  int // index of the best (lowest-price) ask, or -1 if none
	at            time.Time
}

// NewOrderBook constructs an OrderBook from externally-supplied depth lines.
// If decimals is the zero value, the largest price and volume decimal counts
// among the supplied lines are used instead. Lines with a zero amount are
// dropped. Duplicate prices, or prices that interleave bid/ask sides, fail
// construction.
func NewOrderBook(mkt Market, lines []OrderBookLine, decimals VolAndPriNbDecimals, at time.Time) (*OrderBook, error) {
	filtered := make([]line, 0, len(lines))
	for _, l := range lines {
		if l.Amount.IsZero() {
			continue
		}
		amt := l.Amount
		if l.IsAsk {
			amt, _ = amt.Mul(money.New(-1, 0, money.Neutral))
		}
		filtered = append(filtered, line{amount: amt, price: l.Price})
	}

	if decimals == (VolAndPriNbDecimals{}) {
		for _, l := range filtered {
			if d := l.price.NbDecimals(); d > decimals.Pri {
				decimals.Pri = d
			}
			if d := l.amount.NbDecimals(); d > decimals.Vol {
				decimals.Vol = d
			}
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].price.LessThan(filtered[j].price)
	})

	for i := 1; i < len(filtered); i++ {
		if c, err := filtered[i].price.Compare(filtered[i-1].price); err == nil && c == 0 {
			return nil, fmt.Errorf("order book %s: %w", mkt, ErrDuplicatePrice)
		}
	}

	splitPos := len(filtered)
	for i, l := range filtered {
		if l.amount.Sign() <= 0 {
			splitPos = i
			break
		}
	}
	for i := splitPos; i < len(filtered); i++ {
		if filtered[i].amount.Sign() > 0 {
			return nil, fmt.Errorf("order book %s: %w", mkt, ErrBookSidesCrossed)
		}
	}

	highestBidPos := splitPos - 1
	lowestAskPos := -1
	if splitPos < len(filtered) {
		lowestAskPos = splitPos
	}

	return &OrderBook{
		mkt:           mkt,
		lines:         filtered,
		decimals:      decimals,
		highestBidPos: highestBidPos,
		lowestAskPos:  lowestAskPos,
		at:            at,
	}, nil
}

// NewSyntheticOrderBook expands a ticker top-of-book (single bid/ask
// price+volume) into a synthetic depth ladder, per spec.md §4.B: step price
// is (ask-bid), and the simulated step volume is midpoint(bidVol, -askVol)
// applied uniformly up to depth on both sides.
func NewSyntheticOrderBook(mkt Market, askPrice, askVolume, bidPrice, bidVolume money.Amount, decimals VolAndPriNbDecimals, depth int, at time.Time) (*OrderBook, error) {
	if !bidPrice.LessThan(askPrice) {
		return nil, fmt.Errorf("synthetic book %s: bid price must be < ask price", mkt)
	}
	if bidVolume.IsZero() || askVolume.IsZero() {
		return nil, fmt.Errorf("synthetic book %s: %w", mkt, ErrInvalidVolume)
	}
	if depth < 1 {
		depth = 1
	}

	askPrice = askPrice.Truncate(decimals.Pri)
	bidPrice = bidPrice.Truncate(decimals.Pri)
	askVolume = askVolume.Truncate(decimals.Vol)
	bidVolume = bidVolume.Truncate(decimals.Vol)

	stepPrice, err := askPrice.Sub(bidPrice)
	if err != nil {
		return nil, err
	}
	negAskVolume, _ := askVolume.Mul(money.New(-1, 0, money.Neutral))
	sum, err := bidVolume.Add(negAskVolume)
	if err != nil {
		return nil, err
	}
	stepVol, err := sum.Div(money.New(2, 0, money.Neutral))
	if err != nil {
		return nil, err
	}
	half, err := stepVol.Div(money.New(2, 0, money.Neutral))
	if err != nil {
		return nil, err
	}

	lines := make([]OrderBookLine, 0, depth*2)

	bidVol := bidVolume
	bidPx := bidPrice
	for i := 0; i < depth; i++ {
		lines = append(lines, OrderBookLine{Amount: absAmount(bidVol), Price: bidPx, IsAsk: false})
		if i == depth-1 {
			break
		}
		bidPx, err = bidPx.Sub(stepPrice)
		if err != nil {
			return nil, err
		}
		if bidVol, err = bidVol.Add(half); err != nil {
			return nil, err
		}
	}

	askVol := askVolume
	askPx := askPrice
	for i := 0; i < depth; i++ {
		lines = append(lines, OrderBookLine{Amount: absAmount(askVol), Price: askPx, IsAsk: true})
		if i == depth-1 {
			break
		}
		askPx, err = askPx.Add(stepPrice)
		if err != nil {
			return nil, err
		}
		if askVol, err = askVol.Add(half); err != nil {
			return nil, err
		}
	}

	return NewOrderBook(mkt, lines, decimals, at)
}

// ErrInvalidVolume is returned when a synthetic book's seed volumes are zero.
var ErrInvalidVolume = errors.New("market: synthetic book requires nonzero volumes")

func absAmount(a money.Amount) money.Amount {
	if a.Sign() < 0 {
		neg, _ := a.Mul(money.New(-1, 0, money.Neutral))
		return neg
	}
	return a
}

// PriceTick returns the smallest price increment this book is quoted at,
// derived from its price decimal precision.
func (b *OrderBook) PriceTick() money.Amount {
	cur := b.mkt.Quote()
	if len(b.lines) > 0 {
		cur = b.lines[0].price.CurrencyCode()
	}
	return money.New(1, b.decimals.Pri, cur)
}

// Market returns the book's market.
func (b *OrderBook) Market() Market { return b.mkt }

// Time returns the snapshot time.
func (b *OrderBook) Time() time.Time { return b.at }

// IsEmpty reports whether the book has no lines at all.
func (b *OrderBook) IsEmpty() bool { return len(b.lines) == 0 }

// HighestBid returns the best bid price, or false if there are no bids.
func (b *OrderBook) HighestBid() (money.Amount, bool) {
	if b.highestBidPos < 0 {
		return money.Amount{}, false
	}
	return b.lines[b.highestBidPos].price, true
}

// LowestAsk returns the best ask price, or false if there are no asks.
func (b *OrderBook) LowestAsk() (money.Amount, bool) {
	if b.lowestAskPos < 0 {
		return money.Amount{}, false
	}
	return b.lines[b.lowestAskPos].price, true
}

// AveragePrice returns the midpoint of best bid and best ask, or false if
// either side is empty. Midpoint (rather than summing and halving) avoids
// intermediate overflow, per spec.md §4.B.
func (b *OrderBook) AveragePrice() (money.Amount, bool) {
	bid, ok := b.HighestBid()
	if !ok {
		return money.Amount{}, false
	}
	ask, ok := b.LowestAsk()
	if !ok {
		return money.Amount{}, false
	}
	return midpoint(bid, ask), true
}

func midpoint(a, b money.Amount) money.Amount {
	sum, _ := a.Add(b)
	half, _ := sum.Div(money.New(2, 0, money.Neutral))
	return half
}

// ComputeCumulAmountBoughtImmediatelyAt sums ask volumes with price <= p:
// the base-currency amount a taker could buy immediately without moving
// the price past p.
func (b *OrderBook) ComputeCumulAmountBoughtImmediatelyAt(p money.Amount) money.Amount {
	total := money.Zero(b.baseCurrency())
	for i := b.lowestAskPos; i >= 0 && i < len(b.lines); i++ {
		l := b.lines[i]
		if c, _ := l.price.Compare(p); c > 0 {
			break
		}
		total, _ = total.Add(absAmount(l.amount))
	}
	return total
}

// ComputeCumulAmountSoldImmediatelyAt sums bid volumes with price >= p.
func (b *OrderBook) ComputeCumulAmountSoldImmediatelyAt(p money.Amount) money.Amount {
	total := money.Zero(b.baseCurrency())
	for i := b.highestBidPos; i >= 0; i-- {
		l := b.lines[i]
		if c, _ := l.price.Compare(p); c < 0 {
			break
		}
		total, _ = total.Add(l.amount)
	}
	return total
}

func (b *OrderBook) baseCurrency() money.CurrencyCode {
	if len(b.lines) > 0 {
		return b.lines[0].amount.CurrencyCode()
	}
	return b.mkt.Base()
}

// ComputeMaxPriceAtWhichAmountWouldBeBoughtImmediately walks the ask side
// accumulating volume until it reaches a (in base currency), returning the
// price at which the cumulative amount is first satisfied. Returns false if
// the book cannot satisfy the full amount (insufficient liquidity).
func (b *OrderBook) ComputeMaxPriceAtWhichAmountWouldBeBoughtImmediately(a money.Amount) (money.Amount, bool) {
	remaining := a
	for i := b.lowestAskPos; i >= 0 && i < len(b.lines); i++ {
		l := b.lines[i]
		avail := absAmount(l.amount)
		if c, _ := avail.Compare(remaining); c >= 0 {
			return l.price, true
		}
		remaining, _ = remaining.Sub(avail)
	}
	return money.Amount{}, false
}

// ComputeMaxPriceAtWhichAmountWouldBeSoldImmediately mirrors the buy-side
// query against the bid side.
func (b *OrderBook) ComputeMaxPriceAtWhichAmountWouldBeSoldImmediately(a money.Amount) (money.Amount, bool) {
	remaining := a
	for i := b.highestBidPos; i >= 0; i-- {
		l := b.lines[i]
		if c, _ := l.amount.Compare(remaining); c >= 0 {
			return l.price, true
		}
		remaining, _ = remaining.Sub(l.amount)
	}
	return money.Amount{}, false
}

type priceAmount struct {
	amount money.Amount
	price  money.Amount
}

func (b *OrderBook) walkAsksFor(a money.Amount) []priceAmount {
	remaining := a
	var out []priceAmount
	for i := b.lowestAskPos; i >= 0 && i < len(b.lines) && !remaining.IsZero(); i++ {
		l := b.lines[i]
		avail := absAmount(l.amount)
		take := avail
		if c, _ := avail.Compare(remaining); c > 0 {
			take = remaining
		}
		out = append(out, priceAmount{amount: take, price: l.price})
		remaining, _ = remaining.Sub(take)
	}
	if !remaining.IsZero() {
		return nil
	}
	return out
}

func (b *OrderBook) walkBidsFor(a money.Amount) []priceAmount {
	remaining := a
	var out []priceAmount
	for i := b.highestBidPos; i >= 0 && !remaining.IsZero(); i-- {
		l := b.lines[i]
		take := l.amount
		if c, _ := l.amount.Compare(remaining); c > 0 {
			take = remaining
		}
		out = append(out, priceAmount{amount: take, price: l.price})
		remaining, _ = remaining.Sub(take)
	}
	if !remaining.IsZero() {
		return nil
	}
	return out
}

// ComputeAvgPriceAtWhichAmountWouldBeBoughtImmediately returns the
// volume-weighted average ask price consumed buying a (base currency).
func (b *OrderBook) ComputeAvgPriceAtWhichAmountWouldBeBoughtImmediately(a money.Amount) (money.Amount, bool) {
	return avgPrice(b.walkAsksFor(a))
}

// ComputeAvgPriceAtWhichAmountWouldBeSoldImmediately returns the
// volume-weighted average bid price consumed selling a (base currency).
func (b *OrderBook) ComputeAvgPriceAtWhichAmountWouldBeSoldImmediately(a money.Amount) (money.Amount, bool) {
	return avgPrice(b.walkBidsFor(a))
}

func avgPrice(parts []priceAmount) (money.Amount, bool) {
	if parts == nil {
		return money.Amount{}, false
	}
	if len(parts) == 1 {
		return parts[0].price, true
	}
	total := money.Zero(parts[0].price.CurrencyCode())
	totalAmt := money.Zero(parts[0].amount.CurrencyCode())
	for _, p := range parts {
		notional, _ := p.amount.ToNeutral().Mul(p.price.ToNeutral())
		notional = money.New(notional.Mantissa(), notional.NbDecimals(), p.price.CurrencyCode())
		total, _ = total.Add(notional)
		totalAmt, _ = totalAmt.Add(p.amount)
	}
	return total.Div(totalAmt.ToNeutral())
}

// ComputeAvgPriceForTakerAmount resolves the average execution price for a
// taker order of the given size, in either base or quote currency. A base-
// currency amount is being sold (it consumes bids); a quote-currency amount
// buys base with that much quote (it consumes asks, accumulating notional
// until the quote amount is exhausted).
func (b *OrderBook) ComputeAvgPriceForTakerAmount(amountInBaseOrQuote money.Amount) (money.Amount, bool) {
	if amountInBaseOrQuote.CurrencyCode().Equal(b.baseCurrency()) {
		return b.ComputeAvgPriceAtWhichAmountWouldBeSoldImmediately(amountInBaseOrQuote)
	}
	remaining := amountInBaseOrQuote.ToNeutral()
	volumeAcc := money.Zero(money.Neutral)
	for i := b.lowestAskPos; i >= 0 && i < len(b.lines) && !remaining.IsZero(); i++ {
		l := b.lines[i]
		availVol := absAmount(l.amount).ToNeutral()
		levelNotional, _ := availVol.Mul(l.price.ToNeutral())
		if c, _ := levelNotional.Compare(remaining); c <= 0 {
			volumeAcc, _ = volumeAcc.Add(availVol)
			remaining, _ = remaining.Sub(levelNotional)
			continue
		}
		partialVol, _ := remaining.Div(l.price.ToNeutral())
		volumeAcc, _ = volumeAcc.Add(partialVol)
		remaining = money.Zero(money.Neutral)
	}
	if !remaining.IsZero() {
		return money.Amount{}, false
	}
	ratio, _ := amountInBaseOrQuote.ToNeutral().Div(volumeAcc)
	return money.New(ratio.Mantissa(), ratio.NbDecimals(), b.mkt.Quote()), true
}

// ComputeWorstPriceForTakerAmount returns the last (worst) price a taker
// order of the given size would touch.
func (b *OrderBook) ComputeWorstPriceForTakerAmount(amountInBaseOrQuote money.Amount) (money.Amount, bool) {
	var parts []priceAmount
	if amountInBaseOrQuote.CurrencyCode().Equal(b.baseCurrency()) {
		parts = b.walkBidsFor(amountInBaseOrQuote)
	} else {
		vol, ok := b.ConvertQuoteToBase(amountInBaseOrQuote)
		if !ok {
			return money.Amount{}, false
		}
		parts = b.walkAsksFor(vol)
	}
	if parts == nil {
		return money.Amount{}, false
	}
	return parts[len(parts)-1].price, true
}

// ConvertAtAvgPrice converts a using the book's midpoint average price,
// base<->quote.
func (b *OrderBook) ConvertAtAvgPrice(a money.Amount) (money.Amount, bool) {
	avg, ok := b.AveragePrice()
	if !ok {
		return money.Amount{}, false
	}
	if a.CurrencyCode().Equal(b.baseCurrency()) {
		res, _ := a.ToNeutral().Mul(avg.ToNeutral())
		return money.New(res.Mantissa(), res.NbDecimals(), b.mkt.Quote()), true
	}
	res, _ := a.ToNeutral().Div(avg.ToNeutral())
	return money.New(res.Mantissa(), res.NbDecimals(), b.mkt.Base()), true
}

// ConvertBaseToQuote walks the bid side (best to worst) converting a
// base-currency amount to the quote-currency notional it would realize.
func (b *OrderBook) ConvertBaseToQuote(a money.Amount) (money.Amount, bool) {
	parts := b.walkBidsFor(a)
	if parts == nil {
		return money.Amount{}, false
	}
	total := money.Zero(b.mkt.Quote())
	for _, p := range parts {
		notional, _ := p.amount.ToNeutral().Mul(p.price.ToNeutral())
		notional = money.New(notional.Mantissa(), notional.NbDecimals(), b.mkt.Quote())
		total, _ = total.Add(notional)
	}
	return total, true
}

// ConvertQuoteToBase walks the ask side converting a quote-currency amount
// to the base-currency volume it would buy.
func (b *OrderBook) ConvertQuoteToBase(a money.Amount) (money.Amount, bool) {
	remaining := a
	total := money.Zero(b.mkt.Base())
	for i := b.lowestAskPos; i >= 0 && i < len(b.lines) && !remaining.IsZero(); i++ {
		l := b.lines[i]
		volAvail := absAmount(l.amount)
		lineNotionalNeutral, _ := volAvail.ToNeutral().Mul(l.price.ToNeutral())
		lineNotional := money.New(lineNotionalNeutral.Mantissa(), lineNotionalNeutral.NbDecimals(), b.mkt.Quote())
		takeNotional := lineNotional
		takeVol := volAvail
		if c, _ := lineNotional.Compare(remaining); c > 0 {
			takeNotional = remaining
			takeVolNeutral, _ := takeNotional.ToNeutral().Div(l.price.ToNeutral())
			takeVol = money.New(takeVolNeutral.Mantissa(), takeVolNeutral.NbDecimals(), b.mkt.Base())
		}
		total, _ = total.Add(takeVol)
		remaining, _ = remaining.Sub(takeNotional)
	}
	if !remaining.IsZero() {
		return money.Amount{}, false
	}
	return total, true
}
