package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-orders/models"
)

var exportDay = time.Date(2024, 3, 9, 18, 30, 0, 0, time.UTC)

func sampleOrders() []models.Order {
	return []models.Order{
		{
			OrderID:     "123-4567890-1234567",
			OrderDate:   "2024-01-15",
			TotalAmount: decimal.RequireFromString("16"),
			Currency:    "EUR",
			OrderStatus: "Zugestellt",
			DetailsURL:  "https://www.amazon.de/gp/your-account/order-details?orderID=123-4567890-1234567",
			Items: []models.OrderItem{
				{Title: `Kabel "USB-C", 2m`, ASIN: "B000000001", Quantity: 1, Price: decimal.RequireFromString("10"), ItemURL: "https://www.amazon.de/dp/B000000001"},
				{Title: "Netzteil", ASIN: "B000000002", Quantity: 2, Price: decimal.RequireFromString("4"), ItemURL: "https://www.amazon.de/dp/B000000002"},
			},
			Promotions: []models.Promotion{
				{Description: "Coupon", Amount: decimal.RequireFromString("1.5")},
				{Description: "Additional discount", Amount: decimal.RequireFromString("0.5")},
			},
			TotalSavings: decimal.RequireFromString("2"),
		},
		{
			OrderID:     "123-4567890-7654321",
			OrderDate:   "2024-01-20",
			TotalAmount: decimal.RequireFromString("19.99"),
			Currency:    "USD",
		},
		{
			OrderID:     "123-4567890-0000001",
			OrderDate:   "2024-02-02",
			TotalAmount: decimal.RequireFromString("5"),
			Currency:    "EUR",
			Items:       []models.OrderItem{{Title: "Buch", ASIN: "B000000003", Quantity: 1}},
		},
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestEncodeCSVRowCountLaw(t *testing.T) {
	orders := sampleOrders()
	records := readCSV(t, EncodeCSV(orders))

	want := 0
	for _, o := range orders {
		want += max(1, len(o.Items))
	}
	require.Len(t, records, want+1)
	assert.Equal(t, CSVHeader, records[0])
	for i, r := range records {
		assert.Len(t, r, len(CSVHeader), "row %d", i)
	}
}

func TestEncodeCSVAggregatesOnFirstRowOnly(t *testing.T) {
	records := readCSV(t, EncodeCSV(sampleOrders()))

	first, second := records[1], records[2]
	assert.Equal(t, "2.00", first[4])
	assert.Equal(t, "Coupon:1.50; Additional discount:0.50", first[11])
	assert.Equal(t, "", second[4])
	assert.Equal(t, "", second[11])
	assert.Equal(t, "123-4567890-1234567", second[0])
	assert.Equal(t, "2", second[8])
	assert.Equal(t, "4.00", second[9])
}

func TestEncodeCSVZeroItemOrder(t *testing.T) {
	records := readCSV(t, EncodeCSV(sampleOrders()))

	row := records[3]
	assert.Equal(t, "123-4567890-7654321", row[0])
	assert.Equal(t, "19.99", row[2])
	assert.Equal(t, "0.00", row[4])
	for _, col := range []int{6, 7, 8, 9, 10, 12} {
		assert.Empty(t, row[col], "column %s", CSVHeader[col])
	}
}

func TestEncodeCSVQuotesText(t *testing.T) {
	out := string(EncodeCSV(sampleOrders()))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	assert.True(t, strings.HasPrefix(lines[0], `"Order ID","Order Date"`))
	assert.Contains(t, lines[1], `"Kabel ""USB-C"", 2m"`)
	assert.True(t, strings.HasPrefix(lines[1], `"123-4567890-1234567","2024-01-15",16.00,"EUR",2.00,`))
}

func TestEncodeJSON(t *testing.T) {
	data, err := EncodeJSON(sampleOrders())
	require.NoError(t, err)

	assert.Contains(t, string(data), "\n  {\n    \"orderId\": \"123-4567890-1234567\"")

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "2024-01-20", decoded[1]["orderDate"])
	assert.Equal(t, []any{}, decoded[1]["items"])
	assert.Equal(t, []any{}, decoded[1]["promotions"])
	assert.Equal(t, 19.99, decoded[1]["totalAmount"])
}

func TestSerialize(t *testing.T) {
	tests := []struct {
		format   string
		fileName string
		mime     string
	}{
		{format: models.FormatJSON, fileName: "amazon-orders-2024-03-09.json", mime: "application/json"},
		{format: models.FormatCSV, fileName: "amazon-orders-2024-03-09.csv", mime: "text/csv"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			p, err := Serialize(tt.format, sampleOrders(), "amazon", exportDay)
			require.NoError(t, err)
			assert.Equal(t, tt.fileName, p.FileName)
			assert.Equal(t, tt.mime, p.MimeType)
			assert.NotEmpty(t, p.Content)
		})
	}

	_, err := Serialize("xml", nil, "amazon", exportDay)
	assert.Error(t, err)
}
