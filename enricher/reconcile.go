package enricher

import (
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-orders/models"
)

// AdditionalDiscount describes the promotion synthesized for an unexplained price gap.
const AdditionalDiscount = "Additional discount"

var reconcileTolerance = decimal.NewFromFloat(0.01)

// Reconcile sets TotalSavings from the promotions found. When the priced items exceed the
// order total by more than those promotions explain, the remainder becomes one more promotion
// and TotalSavings covers the whole gap.
func Reconcile(o *models.Order) {
	promoSum := o.PromotionsTotal()
	gap := o.ItemsTotal().Sub(o.TotalAmount)

	if gap.GreaterThan(promoSum.Add(reconcileTolerance)) {
		o.Promotions = append(o.Promotions, models.Promotion{
			Description: AdditionalDiscount,
			Amount:      gap.Sub(promoSum).Round(2),
		})
		o.TotalSavings = gap.Round(2)
		return
	}
	o.TotalSavings = promoSum.Round(2)
}
