// Package models defines data structures for the order export.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts are written as JSON numbers; quoted input is still accepted on decode.
	decimal.MarshalJSONWithoutQuotes = true
}

// Supported export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Order is one purchase found on the order history listing.
type Order struct {
	OrderID      string          `json:"orderId"`
	OrderDate    string          `json:"orderDate"`
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	Currency     string          `json:"currency"`
	Items        []OrderItem     `json:"items"`
	OrderStatus  string          `json:"orderStatus"`
	DetailsURL   string          `json:"detailsUrl"`
	Promotions   []Promotion     `json:"promotions"`
	TotalSavings decimal.Decimal `json:"totalSavings"`
}

// OrderItem is a single product line of an order. A zero Price means unresolved.
type OrderItem struct {
	Title    string          `json:"title"`
	ASIN     string          `json:"asin"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Discount decimal.Decimal `json:"discount"`
	ItemURL  string          `json:"itemUrl"`
}

// Promotion is a savings line attributed to an order.
type Promotion struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// ExportOptions carries the operator's choices for one export.
type ExportOptions struct {
	Format    string `json:"format"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	ExportAll bool   `json:"exportAll"`
}

// ItemsTotal sums price × quantity over all items.
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

// PromotionsTotal sums the amounts of all promotions.
func (o *Order) PromotionsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, p := range o.Promotions {
		total = total.Add(p.Amount)
	}
	return total
}

// Normalize replaces nil slices so that JSON output always carries arrays.
func (o *Order) Normalize() {
	if o.Items == nil {
		o.Items = []OrderItem{}
	}
	if o.Promotions == nil {
		o.Promotions = []Promotion{}
	}
}

// ExportResult summarises a finished export run.
type ExportResult struct {
	StartTime      time.Time
	EndTime        time.Time
	OrderCount     int
	ItemCount      int
	PageCount      int
	EnrichedCount  int
	SkippedFetches int
	FileName       string
	Location       string
}
