package wizard

// ShippingSpeed selects the delivery tier for a purchase.
type ShippingSpeed string

const (
	ShippingStandard ShippingSpeed = "standard"
	ShippingExpress  ShippingSpeed = "express"
	ShippingPriority ShippingSpeed = "priority"
)

// PaymentMethod selects how the purchase is settled. Bank and balance are
// accepted without further detail (demo-mode semantics, no real charge).
type PaymentMethod string

const (
	PaymentCard    PaymentMethod = "card"
	PaymentBank    PaymentMethod = "bank"
	PaymentBalance PaymentMethod = "balance"
)

// Demo pricing constants. A production deployment would source these from
// the billing backend.
const (
	UnitPriceCents      int64 = 34900
	TaxRateBasisPoints  int64 = 1600
	basisPointsPerWhole int64 = 10000
)

var shippingSurchargeCents = map[ShippingSpeed]int64{
	ShippingStandard: 0,
	ShippingExpress:  1500,
	ShippingPriority: 3500,
}

// ValidShippingSpeed reports whether s names a tier.
func ValidShippingSpeed(s ShippingSpeed) bool {
	_, ok := shippingSurchargeCents[s]
	return ok
}

// ValidPaymentMethod reports whether m names a supported method.
func ValidPaymentMethod(m PaymentMethod) bool {
	return m == PaymentCard || m == PaymentBank || m == PaymentBalance
}

// TotalCents computes (unit price x quantity + shipping surcharge) plus tax,
// rounded half-up to the cent.
func TotalCents(quantity int, speed ShippingSpeed) int64 {
	subtotal := UnitPriceCents*int64(quantity) + shippingSurchargeCents[speed]
	taxed := subtotal * (basisPointsPerWhole + TaxRateBasisPoints)
	return (taxed + basisPointsPerWhole/2) / basisPointsPerWhole
}
