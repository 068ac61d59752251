package domain

import (
	"encoding/json"
	"testing"
)

func TestOrderItemMarshalDuplicatesPayload(t *testing.T) {
	item := OrderItem{
		Name:      "Netflix Premium",
		Qty:       2,
		Price:     35000,
		ProductID: "netflix",
		Data:      []string{"acc-1", "acc-2"},
	}

	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"data", "sn", "desc"} {
		payload, ok := out[key].([]any)
		if !ok || len(payload) != 2 {
			t.Fatalf("expected key %q to mirror the payload, got %v", key, out[key])
		}
		if payload[0] != "acc-1" || payload[1] != "acc-2" {
			t.Fatalf("key %q payload mismatch: %v", key, payload)
		}
	}
	if _, ok := out["processType"]; ok {
		t.Fatalf("non-manual item must not carry processType")
	}
}

func TestOrderItemManualProcessType(t *testing.T) {
	raw, err := json.Marshal(OrderItem{Name: "Joki", Qty: 1, IsManual: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["processType"] != "MANUAL" {
		t.Fatalf("expected processType MANUAL, got %v", out["processType"])
	}
}

func TestOrderItemUnmarshalLegacyKeys(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"data wins", `{"name":"x","qty":1,"price":0,"data":["from-data"],"sn":["from-sn"],"desc":["from-desc"]}`, "from-data"},
		{"sn fallback", `{"name":"x","qty":1,"price":0,"sn":["from-sn"],"desc":["from-desc"]}`, "from-sn"},
		{"desc fallback", `{"name":"x","qty":1,"price":0,"desc":["from-desc"]}`, "from-desc"},
	}
	for _, tc := range cases {
		var item OrderItem
		if err := json.Unmarshal([]byte(tc.raw), &item); err != nil {
			t.Fatalf("%s: unmarshal: %v", tc.name, err)
		}
		if len(item.Data) != 1 || item.Data[0] != tc.want {
			t.Fatalf("%s: expected %q, got %v", tc.name, tc.want, item.Data)
		}
	}
}

func TestOrderItemUnmarshalLegacyProcessType(t *testing.T) {
	var item OrderItem
	raw := `{"name":"x","qty":1,"price":0,"processType":"MANUAL"}`
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !item.IsManual {
		t.Fatalf("processType MANUAL must set IsManual")
	}
}

func TestProductVariationLookup(t *testing.T) {
	product := Product{
		ID: "spotify",
		Variations: []Variation{
			{Name: "1 Bulan", Items: []string{"a"}},
			{Name: "3 Bulan", Items: []string{"b", "c"}},
		},
	}

	variant := product.Variation("3 Bulan")
	if variant == nil {
		t.Fatalf("expected variant to be found")
	}
	// Lookup must return the live sub-pool, not a copy.
	variant.Items = variant.Items[1:]
	if len(product.Variations[1].Items) != 1 {
		t.Fatalf("Variation must alias the product's pool")
	}

	if product.Variation("Lifetime") != nil {
		t.Fatalf("unknown variant must return nil")
	}
	if got := product.PoolSize(); got != 2 {
		t.Fatalf("expected pool size 2, got %d", got)
	}
}

func TestIsTerminalStatus(t *testing.T) {
	for _, status := range []string{OrderStatusSuccess, OrderStatusFailed} {
		if !IsTerminalStatus(status) {
			t.Fatalf("%s must be terminal", status)
		}
	}
	for _, status := range []string{OrderStatusPending, OrderStatusManualVerification, OrderStatusProcessing, OrderStatusPaid} {
		if IsTerminalStatus(status) {
			t.Fatalf("%s must not be terminal", status)
		}
	}
}
