package account

import (
	"context"
	"time"

	"cct/internal/market"
	"cct/internal/money"
	"cct/internal/trade"
)

// ConversionPathMode restricts path-finding over the currency graph
// (spec.md §4.C).
type ConversionPathMode int

const (
	// Strict only traverses markets that directly share a currency.
	Strict ConversionPathMode = iota
	// AllowFiatStableCoinBridge additionally treats configured fiat/stable
	// pairs as equivalent, widening the search.
	AllowFiatStableCoinBridge
)

// Path is an ordered sequence of markets a MultiTrade walks, each market's
// "to" currency feeding the next market's "from".
type Path []market.Market

// FeeType distinguishes which side of the order book a fee schedule
// applies to.
type FeeType int

const (
	MakerFee FeeType = iota
	TakerFee
)

// ExchangeConfig is the static, rarely-changing configuration a
// PublicMarketView exposes about its exchange (spec.md §4.C).
type ExchangeConfig struct {
	DustThresholds             map[money.CurrencyCode]money.Amount
	MultiTradeAllowedByDefault bool
	PlaceSimulateRealOrder     bool
	PreferredPaymentCurrencies []money.CurrencyCode
	OrderBookRefreshFrequency  time.Duration
	BalanceRefreshFrequency    time.Duration
}

// ApplyFee deducts the configured fee for feeType from amount.
func (c ExchangeConfig) ApplyFee(amount money.Amount, feeType FeeType, makerFeeRatio, takerFeeRatio money.Amount) (money.Amount, error) {
	ratio := makerFeeRatio
	if feeType == TakerFee {
		ratio = takerFeeRatio
	}
	one := money.New(1, 0, money.Neutral)
	complement, err := one.Sub(ratio.ToNeutral())
	if err != nil {
		return money.Amount{}, err
	}
	return amount.ToNeutral().Mul(complement)
}

// DustThreshold returns the configured dust threshold for cur, if any.
func (c ExchangeConfig) DustThreshold(cur money.CurrencyCode) (money.Amount, bool) {
	t, ok := c.DustThresholds[cur]
	return t, ok
}

// BalanceOptions tunes queryAccountBalance (spec.md §4.D).
type BalanceOptions struct {
	IncludeInUse     bool
	EquivalentCurrency money.CurrencyCode // neutral means "no equivalent requested"
}

// PublicMarketView is the read-only market-data surface every exchange
// adapter must implement (spec.md §4.C). Implementations are expected to be
// backed by a caching layer the orchestrator treats as read-mostly.
type PublicMarketView interface {
	ExchangeName() ExchangeName

	TradableMarkets(ctx context.Context) ([]market.Market, error)
	TradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error)

	OrderBook(ctx context.Context, mkt market.Market, depth int) (*market.OrderBook, error)

	// ConversionPath finds the shortest path between from and to subject to
	// mode, preferring paths that avoid fiat currencies on ties.
	ConversionPath(ctx context.Context, from, to money.CurrencyCode, mode ConversionPathMode) (Path, error)

	WithdrawFee(ctx context.Context, cur money.CurrencyCode) (money.Amount, error)
	EstimateConvertRate(ctx context.Context, from money.Amount, to money.CurrencyCode) (money.Amount, error)

	ExchangeConfig(ctx context.Context) (ExchangeConfig, error)
}

// PrivateAccount is the authenticated, order-driving surface every exchange
// adapter must implement (spec.md §4.D).
type PrivateAccount interface {
	PublicMarketView

	Owner() AccountOwner

	ValidateAPIKey(ctx context.Context) error
	QueryTradableCurrencies(ctx context.Context) ([]money.CurrencyCode, error)
	QueryAccountBalance(ctx context.Context, opts BalanceOptions) (*BalancePortfolio, error)

	QueryDepositWallet(ctx context.Context, cur money.CurrencyCode) (Wallet, error)
	CanGenerateDepositAddress() bool

	QueryClosedOrders(ctx context.Context, constraints OrdersConstraints) ([]trade.Info, error)
	QueryOpenedOrders(ctx context.Context, constraints OrdersConstraints) ([]trade.Info, error)
	CancelOpenedOrders(ctx context.Context, constraints OrdersConstraints) error

	QueryRecentDeposits(ctx context.Context, constraints DepositsConstraints) ([]RecentDeposit, error)
	QueryRecentWithdraws(ctx context.Context, constraints WithdrawsConstraints) ([]WithdrawRecord, error)

	IsSimulatedOrderSupported() bool

	// PlaceOrder submits an order for `volume` units of the market's base
	// currency at `price`, in the direction implied by tradeCtx.Side.
	PlaceOrder(ctx context.Context, volume, price money.Amount, info trade.Context) (trade.PlaceOrderInfo, error)
	CancelOrder(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.TradedAmounts, error)
	QueryOrderInfo(ctx context.Context, orderID string, tradeCtx trade.Context) (trade.Info, error)

	LaunchWithdraw(ctx context.Context, grossAmount money.Amount, wallet Wallet) (InitiatedWithdrawInfo, error)
	QueryWithdrawDelivery(ctx context.Context, initiated InitiatedWithdrawInfo, sent SentWithdrawInfo) (ReceivedWithdrawInfo, bool, error)
}
