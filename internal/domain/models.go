package domain

import (
	"encoding/json"
	"time"
)

const (
	OrderStatusPending            = "pending"
	OrderStatusManualVerification = "manual_verification"
	OrderStatusProcessing         = "processing"
	OrderStatusPaid               = "paid"
	OrderStatusSuccess            = "success"
	OrderStatusFailed             = "failed"
)

const (
	CheckoutTypeAuto      = "auto"
	CheckoutTypeSaldo     = "saldo"
	CheckoutTypeComplaint = "complaint"
	CheckoutTypeManual    = "manual"
)

const ComplaintStatusOpen = "open"

// IsTerminalStatus reports whether an order can no longer change state.
func IsTerminalStatus(status string) bool {
	return status == OrderStatusSuccess || status == OrderStatusFailed
}

// OrderItem is one line of an order. Item position inside Order.Items is
// load-bearing: correlation tokens and fill actions address items by index,
// so the sequence must never be reordered after creation.
type OrderItem struct {
	Name        string
	Qty         int
	Price       int64
	ProductID   string
	IsVariant   bool
	OriginalID  string
	VariantName string
	IsManual    bool

	// Data holds the serialized units allocated to this line. The legacy
	// storefront reads the same payload under three keys (data/sn/desc);
	// internally there is exactly one field and the duplication happens
	// only at the JSON boundary.
	Data []string
}

// Fulfilled reports whether the item already carries allocated units.
func (it OrderItem) Fulfilled() bool {
	return len(it.Data) > 0
}

type orderItemJSON struct {
	Name        string   `json:"name"`
	Qty         int      `json:"qty"`
	Price       int64    `json:"price"`
	ProductID   string   `json:"id,omitempty"`
	IsVariant   bool     `json:"isVariant,omitempty"`
	OriginalID  string   `json:"originalId,omitempty"`
	VariantName string   `json:"variantName,omitempty"`
	IsManual    bool     `json:"isManual,omitempty"`
	ProcessType string   `json:"processType,omitempty"`
	Data        []string `json:"data,omitempty"`
	SN          []string `json:"sn,omitempty"`
	Desc        []string `json:"desc,omitempty"`
}

func (it OrderItem) MarshalJSON() ([]byte, error) {
	out := orderItemJSON{
		Name:        it.Name,
		Qty:         it.Qty,
		Price:       it.Price,
		ProductID:   it.ProductID,
		IsVariant:   it.IsVariant,
		OriginalID:  it.OriginalID,
		VariantName: it.VariantName,
		IsManual:    it.IsManual,
		Data:        it.Data,
		SN:          it.Data,
		Desc:        it.Data,
	}
	if it.IsManual {
		out.ProcessType = "MANUAL"
	}
	return json.Marshal(out)
}

func (it *OrderItem) UnmarshalJSON(raw []byte) error {
	var in orderItemJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	it.Name = in.Name
	it.Qty = in.Qty
	it.Price = in.Price
	it.ProductID = in.ProductID
	it.IsVariant = in.IsVariant
	it.OriginalID = in.OriginalID
	it.VariantName = in.VariantName
	it.IsManual = in.IsManual || in.ProcessType == "MANUAL"

	// Any of the three legacy keys may carry the payload; first non-empty wins.
	switch {
	case len(in.Data) > 0:
		it.Data = in.Data
	case len(in.SN) > 0:
		it.Data = in.SN
	case len(in.Desc) > 0:
		it.Data = in.Desc
	default:
		it.Data = nil
	}
	return nil
}

type Order struct {
	ID              string      `json:"id"`
	Status          string      `json:"status"`
	CheckoutType    string      `json:"type,omitempty"`
	Items           []OrderItem `json:"items"`
	Total           int64       `json:"total"`
	BuyerContact    string      `json:"buyerContact,omitempty"`
	Message         string      `json:"message,omitempty"`
	ComplaintStatus string      `json:"complaintStatus,omitempty"`
	ComplaintReply  string      `json:"complaintReply,omitempty"`
	HasNewReply     bool        `json:"hasNewReply,omitempty"`
	FulfillmentDone bool        `json:"fulfillmentDone,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Variation is a named sub-pool of serialized units inside a product.
type Variation struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

type Product struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Price      int64       `json:"price"`
	Items      []string    `json:"items"`
	Variations []Variation `json:"variations,omitempty"`
	RealSold   int         `json:"realSold"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Variation returns the named sub-pool, or nil when the product has no
// variation with that name.
func (p *Product) Variation(name string) *Variation {
	for i := range p.Variations {
		if p.Variations[i].Name == name {
			return &p.Variations[i]
		}
	}
	return nil
}

// PoolSize is the number of units left in the main pool plus all variations.
func (p *Product) PoolSize() int {
	total := len(p.Items)
	for _, v := range p.Variations {
		total += len(v.Items)
	}
	return total
}

type NotifyRequest struct {
	OrderID      string      `json:"orderId"`
	Type         string      `json:"type"`
	BuyerContact string      `json:"buyerContact"`
	Message      string      `json:"message"`
	Total        int64       `json:"total"`
	Items        []OrderItem `json:"items"`
}

type MidtransNotification struct {
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type ProductCreateRequest struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Price      int64       `json:"price"`
	Items      []string    `json:"items"`
	Variations []Variation `json:"variations,omitempty"`
}

// StockUploadRequest appends serialized units to a product's main pool, or to
// the named variation when VariantName is set.
type StockUploadRequest struct {
	VariantName string   `json:"variantName,omitempty"`
	Units       []string `json:"units"`
}

type CatalogProduct struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Price      int64            `json:"price"`
	Stock      int              `json:"stock"`
	Variations []CatalogVariant `json:"variations,omitempty"`
}

type CatalogVariant struct {
	Name  string `json:"name"`
	Stock int    `json:"stock"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
