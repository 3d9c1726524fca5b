package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-orders/models"
)

// CSVHeader lists the fixed export columns.
var CSVHeader = []string{
	"Order ID",
	"Order Date",
	"Total Amount",
	"Currency",
	"Total Savings",
	"Status",
	"Item Title",
	"Item ASIN",
	"Item Quantity",
	"Item Price",
	"Item Discount",
	"Promotions",
	"Item URL",
	"Details URL",
}

// Payload is a serialized export ready for delivery.
type Payload struct {
	Content  []byte
	FileName string
	MimeType string
}

// FileName builds "<product>-orders-<YYYY-MM-DD>.<ext>".
func FileName(product, ext string, now time.Time) string {
	return fmt.Sprintf("%s-orders-%s.%s", product, now.Format("2006-01-02"), ext)
}

// Serialize renders orders in the requested format.
func Serialize(format string, orders []models.Order, product string, now time.Time) (Payload, error) {
	switch format {
	case models.FormatJSON:
		content, err := EncodeJSON(orders)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Content: content, FileName: FileName(product, "json", now), MimeType: "application/json"}, nil
	case models.FormatCSV:
		return Payload{Content: EncodeCSV(orders), FileName: FileName(product, "csv", now), MimeType: "text/csv"}, nil
	default:
		return Payload{}, fmt.Errorf("unsupported format %q", format)
	}
}

// EncodeJSON writes the orders as a pretty-printed array.
func EncodeJSON(orders []models.Order) ([]byte, error) {
	out := make([]models.Order, len(orders))
	for i, o := range orders {
		o.Normalize()
		out[i] = o
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json export: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeCSV flattens orders into one row per item. An order without items still gets one row.
// Total savings and promotions appear only on an order's first row.
func EncodeCSV(orders []models.Order) []byte {
	w := &csvWriter{}
	w.row(headerFields()...)
	for _, o := range orders {
		order := []csvField{
			text(o.OrderID),
			text(o.OrderDate),
			number(o.TotalAmount.StringFixed(2)),
			text(o.Currency),
		}
		aggregates := []csvField{number(o.TotalSavings.StringFixed(2)), text(o.OrderStatus)}
		promotions := text(joinPromotions(o.Promotions))

		if len(o.Items) == 0 {
			fields := append(append([]csvField{}, order...), aggregates...)
			fields = append(fields, empty(), empty(), empty(), empty(), empty(), promotions, empty(), text(o.DetailsURL))
			w.row(fields...)
			continue
		}
		for i, item := range o.Items {
			fields := append([]csvField{}, order...)
			if i == 0 {
				fields = append(fields, aggregates...)
			} else {
				fields = append(fields, empty(), text(o.OrderStatus))
			}
			fields = append(fields,
				text(item.Title),
				text(item.ASIN),
				number(strconv.Itoa(item.Quantity)),
				number(item.Price.StringFixed(2)),
				number(item.Discount.StringFixed(2)),
			)
			if i == 0 {
				fields = append(fields, promotions)
			} else {
				fields = append(fields, empty())
			}
			fields = append(fields, text(item.ItemURL), text(o.DetailsURL))
			w.row(fields...)
		}
	}
	return w.buf.Bytes()
}

func joinPromotions(promos []models.Promotion) string {
	parts := make([]string, 0, len(promos))
	for _, p := range promos {
		parts = append(parts, p.Description+":"+p.Amount.StringFixed(2))
	}
	return strings.Join(parts, "; ")
}

func headerFields() []csvField {
	fields := make([]csvField, len(CSVHeader))
	for i, name := range CSVHeader {
		fields[i] = text(name)
	}
	return fields
}

type csvField struct {
	value  string
	quoted bool
}

func text(v string) csvField   { return csvField{value: v, quoted: true} }
func number(v string) csvField { return csvField{value: v} }
func empty() csvField          { return csvField{} }

// csvWriter always quotes text fields, which encoding/csv only does when a field needs it.
type csvWriter struct {
	buf bytes.Buffer
}

func (w *csvWriter) row(fields ...csvField) {
	for i, f := range fields {
		if i > 0 {
			w.buf.WriteByte(',')
		}
		if !f.quoted {
			w.buf.WriteString(f.value)
			continue
		}
		w.buf.WriteByte('"')
		w.buf.WriteString(strings.ReplaceAll(f.value, `"`, `""`))
		w.buf.WriteByte('"')
	}
	w.buf.WriteByte('\n')
}
