package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

// ExclusionReason says why a selected line was left out of a draft.
type ExclusionReason string

const (
	ExclusionOutOfStock   ExclusionReason = "out_of_stock"
	ExclusionUnresolved   ExclusionReason = "snapshot_unresolved"
	ExclusionOverStock    ExclusionReason = "quantity_exceeds_stock"
	ExclusionUnselectable ExclusionReason = "not_in_cart"
)

// ExcludedLine is a selected line that cannot be ordered right now.
type ExcludedLine struct {
	LineItemID int64           `json:"line_item_id"`
	ProductID  int64           `json:"product_id"`
	Reason     ExclusionReason `json:"reason"`
}

// Draft is the reviewed order proposal built from the cart selection. The
// fingerprint pins the exact lines, quantities, and prices the user reviewed;
// submission is keyed on it so the same reviewed draft cannot be ordered
// twice concurrently.
type Draft struct {
	Items       []types.DraftItem `json:"items"`
	LineItemIDs []int64           `json:"line_item_ids"`
	Excluded    []ExcludedLine    `json:"excluded,omitempty"`
	Total       decimal.Decimal   `json:"total"`
	Fingerprint string            `json:"fingerprint"`
}

func (d Draft) Empty() bool {
	return len(d.Items) == 0
}

// buildDraft converts the selected enriched lines into orderable draft items,
// excluding lines that cannot ship: unresolved snapshots, zero stock, or a
// quantity above stock.
func buildDraft(selected []types.EnrichedCartItem) Draft {
	draft := Draft{Total: decimal.Zero}
	var fingerprintParts []string

	for _, item := range selected {
		if !item.Resolved() {
			draft.Excluded = append(draft.Excluded, ExcludedLine{
				LineItemID: item.Line.ID,
				ProductID:  item.Line.ProductID,
				Reason:     ExclusionUnresolved,
			})
			continue
		}
		if item.Snapshot.StockQuantity <= 0 {
			draft.Excluded = append(draft.Excluded, ExcludedLine{
				LineItemID: item.Line.ID,
				ProductID:  item.Line.ProductID,
				Reason:     ExclusionOutOfStock,
			})
			continue
		}
		if item.Line.Quantity > item.Snapshot.StockQuantity {
			draft.Excluded = append(draft.Excluded, ExcludedLine{
				LineItemID: item.Line.ID,
				ProductID:  item.Line.ProductID,
				Reason:     ExclusionOverStock,
			})
			continue
		}

		unitPrice := item.Snapshot.EffectiveUnitPrice()
		draft.Items = append(draft.Items, types.DraftItem{
			ProductID:    item.Line.ProductID,
			Quantity:     item.Line.Quantity,
			UnitPrice:    unitPrice,
			ProductName:  item.Snapshot.Title,
			ThumbnailURL: item.Snapshot.ThumbnailURL,
		})
		draft.LineItemIDs = append(draft.LineItemIDs, item.Line.ID)
		draft.Total = draft.Total.Add(unitPrice.Mul(decimal.NewFromInt(int64(item.Line.Quantity))))
		fingerprintParts = append(fingerprintParts,
			fmt.Sprintf("%d:%d:%d:%s", item.Line.ID, item.Line.ProductID, item.Line.Quantity, unitPrice.String()))
	}

	sum := sha256.Sum256([]byte(strings.Join(fingerprintParts, "|")))
	draft.Fingerprint = hex.EncodeToString(sum[:])
	return draft
}
