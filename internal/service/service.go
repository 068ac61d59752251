package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"lapakdigital/backend/internal/cache"
	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/fulfillment"
	"lapakdigital/backend/internal/notify"
	"lapakdigital/backend/internal/store"
	"lapakdigital/backend/internal/telegram"
	"lapakdigital/backend/internal/token"
	"lapakdigital/backend/internal/xid"
)

var ErrItemIndexOutOfRange = errors.New("item index out of range")

// Sender is the outbound chat surface the service depends on. telegram.Client
// implements it; tests substitute a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
}

type Service struct {
	repo        store.Repository
	sender      Sender
	catalog     cache.CatalogCache
	catalogTTL  time.Duration
	adminChatID int64
}

func New(repo store.Repository, sender Sender, catalog cache.CatalogCache, catalogTTL time.Duration, adminChatID int64) *Service {
	if catalog == nil {
		catalog = cache.NoopCatalogCache{}
	}
	if catalogTTL <= 0 {
		catalogTTL = 30 * time.Second
	}
	return &Service{
		repo:        repo,
		sender:      sender,
		catalog:     catalog,
		catalogTTL:  catalogTTL,
		adminChatID: adminChatID,
	}
}

// FulfillResult is the outcome of one payment-capture fulfillment attempt.
type FulfillResult struct {
	Order       *domain.Order
	Report      fulfillment.Report
	AlreadyDone bool
}

// Fulfill runs the stock allocator for the order inside one store
// transaction: the order mutation and every product pool mutation commit
// together or not at all. A second capture event for the same order is a
// no-op thanks to the FulfillmentDone guard.
func (s *Service) Fulfill(ctx context.Context, orderID string) (FulfillResult, error) {
	var result FulfillResult

	err := s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.FulfillmentDone {
			result = FulfillResult{Order: order, AlreadyDone: true}
			return nil
		}

		products := make(map[string]*domain.Product)
		for _, id := range fulfillment.ProductIDs(order) {
			product, err := tx.GetProduct(ctx, id)
			if errors.Is(err, store.ErrProductNotFound) {
				products[id] = nil
				continue
			}
			if err != nil {
				return err
			}
			products[id] = product
		}

		rep := fulfillment.Allocate(order, products)
		order.Status = fulfillment.NextStatus(rep)
		order.FulfillmentDone = true

		if err := tx.PutOrder(ctx, order); err != nil {
			return err
		}
		for _, product := range products {
			if product == nil {
				continue
			}
			if err := tx.PutProduct(ctx, product); err != nil {
				return err
			}
		}

		result = FulfillResult{Order: order, Report: rep}
		return nil
	})
	if err != nil {
		return FulfillResult{}, err
	}

	if !result.AlreadyDone {
		s.invalidateCatalog(ctx)
	}
	return result, nil
}

// HandleNotify processes a storefront checkout notification. It is the one
// caller-facing entry point allowed to return an error to its HTTP caller.
func (s *Service) HandleNotify(ctx context.Context, req domain.NotifyRequest) error {
	req.OrderID = strings.TrimSpace(req.OrderID)
	// Every order id must survive a round-trip through correlation tokens
	// and callback payloads; unsafe ids are rejected at intake, not at the
	// point where a token silently fails to parse.
	if req.OrderID != "" && !token.ValidOrderID(req.OrderID) {
		return fmt.Errorf("%w: order id must match [A-Za-z0-9_.:-]", store.ErrInvalidInput)
	}

	switch req.Type {
	case domain.CheckoutTypeComplaint:
		// Complaints always reference an existing order.
		if req.OrderID == "" {
			return store.ErrInvalidInput
		}
		return s.openComplaint(ctx, req)
	case domain.CheckoutTypeAuto:
		if req.OrderID == "" {
			req.OrderID = xid.New("order")
		}
		order, err := s.upsertOrder(ctx, req, domain.OrderStatusManualVerification)
		if err != nil {
			return err
		}
		text, markup := notify.PaymentAlert(order)
		s.notifyOperator(ctx, text, markup)
		return nil
	case domain.CheckoutTypeSaldo, domain.CheckoutTypeManual:
		if req.OrderID == "" {
			req.OrderID = xid.New("order")
		}
		if _, err := s.upsertOrder(ctx, req, domain.OrderStatusPending); err != nil {
			return err
		}
		result, err := s.Fulfill(ctx, req.OrderID)
		if err != nil {
			return err
		}
		text, markup := notify.OrderReport(result.Order, result.Report)
		s.notifyOperator(ctx, text, markup)
		return nil
	default:
		return fmt.Errorf("%w: unknown notify type %q", store.ErrInvalidInput, req.Type)
	}
}

// HandleMidtransNotification processes a gateway webhook event. Errors are
// returned for logging and operator notification only; the HTTP layer always
// acknowledges the gateway to stop redelivery storms.
func (s *Service) HandleMidtransNotification(ctx context.Context, ev domain.MidtransNotification) error {
	orderID := strings.TrimSpace(ev.OrderID)
	if orderID == "" {
		return store.ErrInvalidInput
	}

	switch ev.TransactionStatus {
	case "settlement", "capture":
		var order *domain.Order
		err := s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
			o, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			// Duplicate webhook delivery for an already-fulfilled order.
			if o.FulfillmentDone || domain.IsTerminalStatus(o.Status) {
				order = nil
				return nil
			}
			// The raw webhook path only confirms payment receipt;
			// allocation waits for the operator accept action.
			o.Status = domain.OrderStatusPaid
			order = o
			return tx.PutOrder(ctx, o)
		})
		if err != nil {
			return err
		}
		if order != nil {
			text, markup := notify.PaymentAlert(order)
			s.notifyOperator(ctx, text, markup)
		}
		return nil
	case "expire", "cancel", "deny":
		return s.transitionStatus(ctx, orderID, domain.OrderStatusFailed)
	default:
		// Pending and unknown intermediate states carry no action.
		return nil
	}
}

// AcceptOrder is the operator accept action: run the allocator and report.
func (s *Service) AcceptOrder(ctx context.Context, orderID string) error {
	result, err := s.Fulfill(ctx, orderID)
	if err != nil {
		return err
	}
	if result.AlreadyDone {
		s.notifyOperator(ctx, notify.StatusNotice(result.Order), nil)
		return nil
	}
	text, markup := notify.OrderReport(result.Order, result.Report)
	s.notifyOperator(ctx, text, markup)
	return nil
}

// RejectOrder marks a not-yet-terminal order failed.
func (s *Service) RejectOrder(ctx context.Context, orderID string) error {
	return s.transitionStatus(ctx, orderID, domain.OrderStatusFailed)
}

// MarkDone is the explicit operator override: the order is forced to success
// regardless of item completeness. The order must exist.
func (s *Service) MarkDone(ctx context.Context, orderID string) error {
	return s.transitionStatus(ctx, orderID, domain.OrderStatusSuccess)
}

func (s *Service) transitionStatus(ctx context.Context, orderID string, status string) error {
	var order *domain.Order
	err := s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if domain.IsTerminalStatus(o.Status) {
			order = o
			return nil
		}
		o.Status = status
		order = o
		return tx.PutOrder(ctx, o)
	})
	if err != nil {
		return err
	}
	s.notifyOperator(ctx, notify.StatusNotice(order), nil)
	return nil
}

// ApplyManualData writes operator-supplied lines into one order item,
// replacing any previous manual input for that item. Status is untouched;
// the operator closes the order separately via MarkDone.
func (s *Service) ApplyManualData(ctx context.Context, orderID string, itemIndex int, rawText string) error {
	units := splitLines(rawText)
	if len(units) == 0 {
		return store.ErrInvalidInput
	}

	return s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if itemIndex < 0 || itemIndex >= len(order.Items) {
			return ErrItemIndexOutOfRange
		}
		order.Items[itemIndex].Data = units
		return tx.PutOrder(ctx, order)
	})
}

// ApplyComplaintReply stores the operator's answer for the buyer-facing
// surface to pick up. Items are never touched on this path.
func (s *Service) ApplyComplaintReply(ctx context.Context, orderID string, replyText string) error {
	replyText = strings.TrimSpace(replyText)
	if replyText == "" {
		return store.ErrInvalidInput
	}

	return s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order.ComplaintReply = replyText
		order.HasNewReply = true
		return tx.PutOrder(ctx, order)
	})
}

func (s *Service) openComplaint(ctx context.Context, req domain.NotifyRequest) error {
	var order *domain.Order
	err := s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.GetOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		o.ComplaintStatus = domain.ComplaintStatusOpen
		if req.Message != "" {
			o.Message = req.Message
		}
		order = o
		return tx.PutOrder(ctx, o)
	})
	if err != nil {
		return err
	}
	text, markup := notify.ComplaintAlert(order)
	s.notifyOperator(ctx, text, markup)
	return nil
}

// Dashboard renders the operator dashboard from counts read fresh from the
// store; nothing here is cached.
func (s *Service) Dashboard(ctx context.Context) (string, error) {
	pendingManual, err := s.repo.CountOrdersByStatus(ctx,
		domain.OrderStatusManualVerification, domain.OrderStatusProcessing, domain.OrderStatusPaid)
	if err != nil {
		return "", err
	}
	openComplaints, err := s.repo.CountOpenComplaints(ctx)
	if err != nil {
		return "", err
	}
	return notify.Dashboard(pendingManual, openComplaints), nil
}

// HandleTelegramUpdate routes one inbound chat event. Updates from chats
// other than the configured operator chat are dropped.
func (s *Service) HandleTelegramUpdate(ctx context.Context, upd telegram.Update) error {
	switch {
	case upd.CallbackQuery != nil:
		return s.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		return s.handleMessage(ctx, upd.Message)
	default:
		return nil
	}
}

func (s *Service) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat.ID != s.adminChatID {
		return nil
	}
	action, ok := token.ParseCallback(cb.Data)
	if !ok {
		return nil
	}

	if err := s.sender.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		log.Printf("[service] WARN: answer callback failed: %v", err)
	}

	switch action.Kind {
	case token.ActionAccept:
		return s.AcceptOrder(ctx, action.OrderID)
	case token.ActionReject:
		return s.RejectOrder(ctx, action.OrderID)
	case token.ActionDone:
		return s.MarkDone(ctx, action.OrderID)
	case token.ActionFill:
		order, err := s.repo.GetOrder(ctx, action.OrderID)
		if err != nil {
			return err
		}
		if action.ItemIndex < 0 || action.ItemIndex >= len(order.Items) {
			return ErrItemIndexOutOfRange
		}
		text, markup := notify.FillPrompt(order, action.ItemIndex)
		s.notifyOperator(ctx, text, markup)
		return nil
	case token.ActionReplyComplaint:
		order, err := s.repo.GetOrder(ctx, action.OrderID)
		if err != nil {
			return err
		}
		text, markup := notify.ComplaintPrompt(order)
		s.notifyOperator(ctx, text, markup)
		return nil
	default:
		return nil
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat.ID != s.adminChatID {
		return nil
	}

	switch strings.TrimSpace(msg.Text) {
	case "/start", "/dashboard":
		text, err := s.Dashboard(ctx)
		if err != nil {
			return err
		}
		s.notifyOperator(ctx, text, nil)
		return nil
	}

	if msg.ReplyToMessage == nil {
		return nil
	}

	// The correlation token lives in the quoted original message, not in
	// the operator's new text. No recognizable token means the reply is
	// unrelated; it is ignored without an operator-facing error.
	tok, ok := token.Parse(msg.ReplyToMessage.Text)
	if !ok {
		return nil
	}

	switch tok.Kind {
	case token.KindData:
		if err := s.ApplyManualData(ctx, tok.OrderID, tok.ItemIndex, msg.Text); err != nil {
			return err
		}
		order, err := s.repo.GetOrder(ctx, tok.OrderID)
		if err != nil {
			return err
		}
		s.notifyOperator(ctx, notify.FillConfirmation(order, tok.ItemIndex, len(order.Items[tok.ItemIndex].Data)), nil)
		return nil
	case token.KindComplaint:
		if err := s.ApplyComplaintReply(ctx, tok.OrderID, msg.Text); err != nil {
			return err
		}
		order, err := s.repo.GetOrder(ctx, tok.OrderID)
		if err != nil {
			return err
		}
		s.notifyOperator(ctx, notify.ComplaintReplyConfirmation(order), nil)
		return nil
	default:
		return nil
	}
}

// NotifyInternalFailure surfaces a processing failure to the operator chat.
// Used by webhook handlers, which acknowledge their caller regardless.
func (s *Service) NotifyInternalFailure(ctx context.Context, label string, err error) {
	s.notifyOperator(ctx, notify.InternalFailure(label, err), nil)
}

// ListCatalog serves the public storefront catalog, cached with a short TTL.
func (s *Service) ListCatalog(ctx context.Context) ([]domain.CatalogProduct, error) {
	if cached, ok, err := s.catalog.Get(ctx); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: catalog cache read failed: %v", err)
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	catalog := make([]domain.CatalogProduct, 0, len(products))
	for _, p := range products {
		entry := domain.CatalogProduct{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Stock: len(p.Items),
		}
		for _, v := range p.Variations {
			entry.Variations = append(entry.Variations, domain.CatalogVariant{Name: v.Name, Stock: len(v.Items)})
		}
		catalog = append(catalog, entry)
	}

	if err := s.catalog.Set(ctx, catalog, s.catalogTTL); err != nil {
		log.Printf("[service] WARN: catalog cache write failed: %v", err)
	}
	return catalog, nil
}

// ListOrders is the admin order listing; empty status lists everything.
func (s *Service) ListOrders(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListOrdersByStatus(ctx, status, limit)
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// CreateProduct registers a new product with its initial pools (admin only).
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	req.ID = strings.TrimSpace(req.ID)
	req.Name = strings.TrimSpace(req.Name)
	if req.ID == "" || req.Name == "" || req.Price < 0 {
		return nil, store.ErrInvalidInput
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:         req.ID,
		Name:       req.Name,
		Price:      req.Price,
		Items:      cleanUnits(req.Items),
		Variations: cleanVariations(req.Variations),
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	return created, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// UploadStock appends serialized units to a product pool (admin only).
// It runs transactionally so a concurrent allocation cannot be lost.
func (s *Service) UploadStock(ctx context.Context, productID string, req domain.StockUploadRequest) (*domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return nil, fmt.Errorf("admin role required")
	}

	units := cleanUnits(req.Units)
	if len(units) == 0 {
		return nil, store.ErrInvalidInput
	}

	var updated *domain.Product
	err := s.repo.Transact(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if req.VariantName != "" {
			variant := product.Variation(req.VariantName)
			if variant == nil {
				return store.ErrVariantNotFound
			}
			variant.Items = append(variant.Items, units...)
		} else {
			product.Items = append(product.Items, units...)
		}
		updated = product
		return tx.PutProduct(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	s.invalidateCatalog(ctx)
	return updated, nil
}

func (s *Service) upsertOrder(ctx context.Context, req domain.NotifyRequest, status string) (*domain.Order, error) {
	existing, err := s.repo.GetOrder(ctx, req.OrderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrOrderNotFound) {
		return nil, err
	}

	return s.repo.CreateOrder(ctx, domain.Order{
		ID:           req.OrderID,
		Status:       status,
		CheckoutType: req.Type,
		Items:        req.Items,
		Total:        req.Total,
		BuyerContact: req.BuyerContact,
		Message:      req.Message,
	})
}

func (s *Service) notifyOperator(ctx context.Context, text string, markup *telegram.ReplyMarkup) {
	var opts *telegram.SendOptions
	if markup != nil {
		opts = &telegram.SendOptions{ReplyMarkup: markup}
	}
	// Delivery failures are logged, never retried, and never block the
	// event that triggered the notification.
	if err := s.sender.SendMessage(ctx, s.adminChatID, text, opts); err != nil {
		log.Printf("[service] WARN: operator notification failed: %v", err)
	}
}

func (s *Service) invalidateCatalog(ctx context.Context) {
	if err := s.catalog.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: catalog cache invalidate failed: %v", err)
	}
}

func splitLines(raw string) []string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func cleanUnits(units []string) []string {
	out := make([]string, 0, len(units))
	for _, u := range units {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, u)
	}
	return out
}

func cleanVariations(variations []domain.Variation) []domain.Variation {
	out := make([]domain.Variation, 0, len(variations))
	for _, v := range variations {
		name := strings.TrimSpace(v.Name)
		if name == "" {
			continue
		}
		out = append(out, domain.Variation{Name: name, Items: cleanUnits(v.Items)})
	}
	return out
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}
