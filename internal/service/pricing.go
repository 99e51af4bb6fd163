package service

import (
	"math"

	"autocare/backend/internal/domain"
)

// CalculateOrderTotals computes the financial breakdown of an order draft.
// Pure and deterministic: parts count only on sale-bearing types, the service
// charge and service items only on service-bearing types, and the discount is
// taken from the portion named by scope. The grand total is not clamped at
// zero; an oversized discount is the authorization gate's problem, upstream.
func CalculateOrderTotals(orderType string, items []domain.OrderItem, serviceChargeCents int64, discountPercent float64, scope string) domain.OrderTotals {
	var parts, service int64

	if includesSale(orderType) {
		for _, item := range items {
			if item.Kind == domain.ItemKindProduct {
				parts += item.Qty * item.UnitPriceCents
			}
		}
	}
	if includesService(orderType) {
		service = serviceChargeCents
		for _, item := range items {
			if item.Kind == domain.ItemKindService {
				service += item.Qty * item.UnitPriceCents
			}
		}
	}

	subtotal := parts + service

	var discount int64
	if discountPercent > 0 {
		base := subtotal
		switch scope {
		case domain.DiscountScopeSale:
			base = parts
		case domain.DiscountScopeService:
			base = service
		}
		discount = int64(math.Round(float64(base) * discountPercent / 100))
	}

	return domain.OrderTotals{
		PartsCents:    parts,
		ServiceCents:  service,
		SubtotalCents: subtotal,
		DiscountCents: discount,
		GrandCents:    subtotal - discount,
	}
}

func includesSale(orderType string) bool {
	return orderType == domain.OrderTypeSale || orderType == domain.OrderTypeSaleAndService
}

func includesService(orderType string) bool {
	return orderType == domain.OrderTypeService || orderType == domain.OrderTypeSaleAndService
}

// DeriveOrderType applies the one-directional convenience coupling between
// order type and vehicle presence: losing the vehicle downgrades
// service-bearing types to a plain sale, gaining one upgrades a plain sale to
// a service order. Other combinations pass through untouched.
func DeriveOrderType(current string, hasVehicle bool) string {
	if !hasVehicle && includesService(current) {
		return domain.OrderTypeSale
	}
	if hasVehicle && current == domain.OrderTypeSale {
		return domain.OrderTypeService
	}
	return current
}

// FilterItemsForType drops line items incompatible with the order type.
func FilterItemsForType(orderType string, items []domain.OrderItem) []domain.OrderItem {
	if orderType == domain.OrderTypeSaleAndService {
		return items
	}

	keep := domain.ItemKindProduct
	if orderType == domain.OrderTypeService {
		keep = domain.ItemKindService
	}

	filtered := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		if item.Kind == keep {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// AllowedDiscountScopes lists the legal discount scopes for an order type.
// Single-component types lock the scope to their only value category.
func AllowedDiscountScopes(orderType string) []string {
	switch orderType {
	case domain.OrderTypeSale:
		return []string{domain.DiscountScopeSale}
	case domain.OrderTypeService:
		return []string{domain.DiscountScopeService}
	default:
		return []string{domain.DiscountScopeTotal, domain.DiscountScopeSale, domain.DiscountScopeService}
	}
}

func scopeAllowed(orderType string, scope string) bool {
	for _, allowed := range AllowedDiscountScopes(orderType) {
		if scope == allowed {
			return true
		}
	}
	return false
}

// defaultScopeForType returns the scope an order falls back to when its
// current scope becomes illegal after a type switch.
func defaultScopeForType(orderType string) string {
	return AllowedDiscountScopes(orderType)[0]
}

func validOrderType(orderType string) bool {
	switch orderType {
	case domain.OrderTypeSale, domain.OrderTypeService, domain.OrderTypeSaleAndService:
		return true
	}
	return false
}

func validItemKind(kind string) bool {
	return kind == domain.ItemKindProduct || kind == domain.ItemKindService
}
