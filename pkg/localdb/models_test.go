package localdb

import (
	"testing"
	"time"

	"github.com/nvquang/storefront-core/pkg/enums"
	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

func TestSnapshotRowRoundTrip(t *testing.T) {
	discount := decimal.NewFromInt(80000)
	fetched := time.Now().Truncate(time.Second)
	snap := types.ProductSnapshot{
		ProductID:     7,
		Title:         "Nhà Giả Kim",
		Author:        "Paulo Coelho",
		Price:         decimal.NewFromInt(100000),
		DiscountPrice: &discount,
		ThumbnailURL:  "https://cdn.example.com/7.jpg",
		StockQuantity: 12,
		FetchedAt:     fetched,
	}

	row := FromSnapshot(snap)
	back, err := row.ToSnapshot()
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}

	if !back.Price.Equal(snap.Price) {
		t.Fatalf("price mismatch: %s vs %s", back.Price, snap.Price)
	}
	if back.DiscountPrice == nil || !back.DiscountPrice.Equal(discount) {
		t.Fatalf("discount price lost in round trip")
	}
	if back.StockQuantity != 12 {
		t.Fatalf("stock mismatch: %d", back.StockQuantity)
	}
}

func TestSnapshotRowWithoutDiscount(t *testing.T) {
	snap := types.ProductSnapshot{
		ProductID: 9,
		Title:     "Dế Mèn Phiêu Lưu Ký",
		Price:     decimal.NewFromInt(50000),
	}

	row := FromSnapshot(snap)
	if row.DiscountPrice != nil {
		t.Fatalf("expected nil discount column")
	}
	back, err := row.ToSnapshot()
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if back.DiscountPrice != nil {
		t.Fatalf("expected nil discount after round trip")
	}
}

func TestOrderRowRoundTrip(t *testing.T) {
	order := types.Order{
		ID:        33,
		Status:    enums.OrderStatusPending,
		Total:     decimal.NewFromInt(210000),
		Method:    enums.PaymentMethodCOD,
		CreatedAt: time.Now().Truncate(time.Second),
	}

	row := FromOrder("user-1", order, time.Now())
	back, err := row.ToOrder()
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if back.ID != 33 || back.Status != enums.OrderStatusPending {
		t.Fatalf("order identity lost: %+v", back)
	}
	if !back.Total.Equal(order.Total) {
		t.Fatalf("total mismatch: %s", back.Total)
	}
}
