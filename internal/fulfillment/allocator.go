// Package fulfillment implements the stock-allocation core: pulling
// pre-generated serialized units (license keys, account credentials,
// vouchers) out of product pools and attaching them to order lines.
//
// Allocate is a pure function over injected snapshots. The caller is
// responsible for loading the snapshots inside a store transaction and
// persisting the mutated order and products atomically, so the allocation
// logic itself needs no store and is testable in isolation.
package fulfillment

import (
	"fmt"

	"lapakdigital/backend/internal/domain"
)

// Report is the per-order outcome of one allocation pass.
type Report struct {
	// Logs holds one human-readable line per visited item, in item order.
	Logs []string
	// NeedManual is set when at least one item could not be fulfilled
	// automatically and requires operator-supplied data.
	NeedManual bool
}

// Allocate walks the order's items in stored sequence order and moves units
// from the matching product pools into the items' Data.
//
// Rules, per item:
//   - an item that already holds data is skipped (idempotent re-run);
//   - a manual item is never auto-filled and always flags NeedManual;
//   - a missing product or variant is logged and flags NeedManual without
//     aborting the remaining items;
//   - a pool with at least qty units yields its first qty units (stored
//     order is allocation order); fewer than qty units means the item gets
//     nothing, since a single line is never partially filled.
//
// products maps product id to its snapshot; a nil value (or absent key)
// means the product document does not exist. Allocate mutates the order and
// the product snapshots in place.
func Allocate(order *domain.Order, products map[string]*domain.Product) Report {
	var rep Report

	for i := range order.Items {
		item := &order.Items[i]
		label := fmt.Sprintf("#%d %s x%d", i+1, item.Name, item.Qty)

		if item.Fulfilled() {
			rep.Logs = append(rep.Logs, fmt.Sprintf("%s: sudah terisi, dilewati", label))
			continue
		}
		if item.IsManual {
			rep.NeedManual = true
			rep.Logs = append(rep.Logs, fmt.Sprintf("%s: produk manual, menunggu operator", label))
			continue
		}
		if item.Qty < 1 {
			rep.NeedManual = true
			rep.Logs = append(rep.Logs, fmt.Sprintf("%s: qty tidak valid", label))
			continue
		}

		product := products[poolProductID(*item)]
		if product == nil {
			rep.NeedManual = true
			rep.Logs = append(rep.Logs, fmt.Sprintf("%s: produk tidak ditemukan", label))
			continue
		}

		pool := &product.Items
		if item.IsVariant {
			variant := product.Variation(item.VariantName)
			if variant == nil {
				rep.NeedManual = true
				rep.Logs = append(rep.Logs, fmt.Sprintf("%s: variasi %q tidak ditemukan", label, item.VariantName))
				continue
			}
			pool = &variant.Items
		}

		if len(*pool) < item.Qty {
			rep.NeedManual = true
			rep.Logs = append(rep.Logs, fmt.Sprintf("%s: stok kurang (tersedia %d, butuh %d)", label, len(*pool), item.Qty))
			continue
		}

		// FIFO: stored pool order defines allocation order.
		taken := make([]string, item.Qty)
		copy(taken, (*pool)[:item.Qty])
		*pool = (*pool)[item.Qty:]
		item.Data = taken
		product.RealSold += item.Qty
		rep.Logs = append(rep.Logs, fmt.Sprintf("%s: %d unit terkirim", label, item.Qty))
	}

	return rep
}

// NextStatus derives the order status after an allocator pass: a clean pass
// completes the order, anything left over goes to the operator queue.
func NextStatus(rep Report) string {
	if rep.NeedManual {
		return domain.OrderStatusProcessing
	}
	return domain.OrderStatusSuccess
}

// poolProductID resolves which product document supplies stock for an item:
// variant items point at their parent product via OriginalID.
func poolProductID(item domain.OrderItem) string {
	if item.IsVariant {
		return item.OriginalID
	}
	return item.ProductID
}

// ProductIDs returns the distinct product ids the order's unfulfilled,
// non-manual items draw stock from, in first-reference order.
func ProductIDs(order *domain.Order) []string {
	seen := make(map[string]struct{}, len(order.Items))
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Fulfilled() || item.IsManual {
			continue
		}
		id := poolProductID(item)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
