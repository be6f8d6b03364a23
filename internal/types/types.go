package types

import "strings"

type OrderSide string

type OrderType string

type OrderStatus string

type AssetClass string

type EventType string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeEntry  OrderType = "entry"
)

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	AssetClassStocks      AssetClass = "STOCKS"
	AssetClassForex       AssetClass = "FOREX"
	AssetClassCrypto      AssetClass = "CRYPTO"
	AssetClassIndices     AssetClass = "INDICES"
	AssetClassCommodities AssetClass = "COMMODITIES"
)

const (
	EventOrderFilled          EventType = "ORDER_FILLED"
	EventOrderPending         EventType = "ORDER_PENDING"
	EventOrderCancelled       EventType = "ORDER_CANCELLED"
	EventOrderModified        EventType = "ORDER_MODIFIED"
	EventPositionClosed       EventType = "POSITION_CLOSED"
	EventAccountMetricsUpdate EventType = "ACCOUNT_METRICS_UPDATE"
)

// Normalize upper-cases and trims the class so lookups are case-insensitive.
func (c AssetClass) Normalize() AssetClass {
	return AssetClass(strings.ToUpper(strings.TrimSpace(string(c))))
}

func (s OrderSide) Valid() bool {
	return s == OrderSideBuy || s == OrderSideSell
}

// ParseOrderSide accepts any casing of buy/sell.
func ParseOrderSide(raw string) (OrderSide, bool) {
	s := OrderSide(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}
