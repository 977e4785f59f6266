package cart

const (
	// TaxRate is applied to the subtotal.
	TaxRate = 0.21
	// FreeShippingThreshold waives shipping when subtotal >= threshold.
	FreeShippingThreshold = 100.0
	// FlatShippingFee is charged below the threshold (including an empty cart).
	FlatShippingFee = 10.0
)

// Totals is derived from line items on demand and never stored.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Shipping  float64 `json:"shipping"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

// ComputeTotals is plain floating-point arithmetic; rounding is a display concern.
func ComputeTotals(items []LineItem) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal += it.Price * float64(it.Quantity)
		t.ItemCount += it.Quantity
	}

	t.Tax = t.Subtotal * TaxRate
	if t.Subtotal >= FreeShippingThreshold {
		t.Shipping = 0
	} else {
		t.Shipping = FlatShippingFee
	}
	t.Total = t.Subtotal + t.Tax + t.Shipping
	return t
}
