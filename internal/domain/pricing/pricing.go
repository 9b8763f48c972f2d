// Package pricing computes cart totals from catalog prices, the running
// promotion and the store shipping policy.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/eyewear-store/internal/domain/product"
	"github.com/xenking/eyewear-store/internal/domain/promotion"
)

var two = decimal.NewFromInt(2)

// Line is a product and the quantity requested.
type Line struct {
	Product  product.Product
	Quantity int
}

// PricedLine is a line after tier repricing.
type PricedLine struct {
	ProductID string
	SKU       string
	Name      string
	Category  product.Category
	Quantity  int
	ListPrice decimal.Decimal
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Adjustment is a single discount with a human-readable description.
type Adjustment struct {
	Description string
	Amount      decimal.Decimal
}

// Quote is the full price breakdown of a cart.
type Quote struct {
	Lines       []PricedLine
	Adjustments []Adjustment
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Shipping    decimal.Decimal
	Total       decimal.Decimal
	PromotionID string
}

// ShippingPolicy prices delivery for a discounted merchandise total.
type ShippingPolicy interface {
	ShippingFor(merchandise decimal.Decimal) decimal.Decimal
}

// Calculate prices lines. promo may be nil; it is assumed to be running.
// shipping may be nil for free delivery.
func Calculate(lines []Line, promo *promotion.Promotion, shipping ShippingPolicy) Quote {
	q := Quote{
		Lines:    make([]PricedLine, 0, len(lines)),
		Subtotal: decimal.Zero,
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
	}

	type tierGroup struct {
		tier  promotion.Tier
		units int
	}
	var groups []*tierGroup
	groupFor := func(t promotion.Tier) *tierGroup {
		for _, g := range groups {
			if g.tier.Category == t.Category && g.tier.OriginalPrice.Equal(t.OriginalPrice) {
				return g
			}
		}
		g := &tierGroup{tier: t}
		groups = append(groups, g)
		return g
	}

	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		list := l.Product.Price
		unit := list

		if promo != nil {
			if t, ok := promo.TierFor(l.Product); ok {
				unit = t.DiscountedPrice
				groupFor(t).units += l.Quantity
			}
		}

		q.Subtotal = q.Subtotal.Add(list.Mul(qty))
		q.Lines = append(q.Lines, PricedLine{
			ProductID: l.Product.ID,
			SKU:       l.Product.SKU,
			Name:      l.Product.Name,
			Category:  l.Product.Category,
			Quantity:  l.Quantity,
			ListPrice: list,
			UnitPrice: unit,
			LineTotal: unit.Mul(qty).Round(2),
		})
	}

	for _, g := range groups {
		units := decimal.NewFromInt(int64(g.units))
		tierSaving := g.tier.OriginalPrice.Sub(g.tier.DiscountedPrice).Mul(units)
		if tierSaving.IsPositive() {
			q.Adjustments = append(q.Adjustments, Adjustment{
				Description: fmt.Sprintf("%s: %s %s now %s",
					promo.Name, g.tier.Category, g.tier.OriginalPrice.StringFixed(2), g.tier.DiscountedPrice.StringFixed(2)),
				Amount: tierSaving.Round(2),
			})
		}
		if pairs := g.units / 2; pairs > 0 && g.tier.HasBundle() {
			perPair := g.tier.DiscountedPrice.Mul(two).Sub(g.tier.PairPrice)
			bundleSaving := floorAtZero(perPair).Mul(decimal.NewFromInt(int64(pairs)))
			if bundleSaving.IsPositive() {
				q.Adjustments = append(q.Adjustments, Adjustment{
					Description: fmt.Sprintf("%s: 2 %s for %s",
						promo.Name, g.tier.Category, g.tier.PairPrice.StringFixed(2)),
					Amount: bundleSaving.Round(2),
				})
			}
		}
	}

	for _, a := range q.Adjustments {
		q.Discount = q.Discount.Add(a.Amount)
	}
	q.Subtotal = q.Subtotal.Round(2)
	q.Discount = decimal.Min(q.Discount, q.Subtotal).Round(2)
	if promo != nil && len(q.Adjustments) > 0 {
		q.PromotionID = promo.ID
	}

	merchandise := floorAtZero(q.Subtotal.Sub(q.Discount))
	if shipping != nil && len(q.Lines) > 0 {
		q.Shipping = floorAtZero(shipping.ShippingFor(merchandise)).Round(2)
	}
	q.Total = merchandise.Add(q.Shipping).Round(2)

	return q
}

// MinorUnits converts a two-decimal amount to integer cents.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
