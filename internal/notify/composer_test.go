package notify

import (
	"strings"
	"testing"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/fulfillment"
	"lapakdigital/backend/internal/token"
)

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:           "ORD-1001",
		Status:       domain.OrderStatusProcessing,
		Total:        97000,
		BuyerContact: "0812xxxx",
		Items: []domain.OrderItem{
			{Name: "Netflix Premium", Qty: 2, Price: 35000, ProductID: "netflix", Data: []string{"a", "b"}},
			{Name: "Joki Rank", Qty: 1, Price: 27000, ProductID: "joki", IsManual: true},
		},
	}
}

func TestFormatAmount(t *testing.T) {
	cases := map[int64]string{
		0:        "0",
		950:      "950",
		35000:    "35.000",
		1250000:  "1.250.000",
		10000000: "10.000.000",
	}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Fatalf("FormatAmount(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFillPromptEmbedsHiddenToken(t *testing.T) {
	order := sampleOrder()
	text, markup := FillPrompt(order, 1)

	wantToken := "<tg-spoiler>" + token.ManualFill("ORD-1001", 1).String() + "</tg-spoiler>"
	if !strings.Contains(text, wantToken) {
		t.Fatalf("prompt must embed hidden token, got:\n%s", text)
	}
	if markup == nil || !markup.ForceReply {
		t.Fatalf("fill prompt must force a reply")
	}

	// The token must survive tag stripping, as Telegram delivers quoted
	// text without HTML markup.
	stripped := strings.NewReplacer("<tg-spoiler>", "", "</tg-spoiler>", "").Replace(text)
	tok, ok := token.Parse(stripped)
	if !ok {
		t.Fatalf("token must parse from stripped prompt text:\n%s", stripped)
	}
	if tok.OrderID != "ORD-1001" || tok.ItemIndex != 1 {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestComplaintPromptEmbedsHiddenToken(t *testing.T) {
	text, markup := ComplaintPrompt(sampleOrder())

	if !strings.Contains(text, "COMPLAINT|ORD-1001") {
		t.Fatalf("prompt must carry the complaint token, got:\n%s", text)
	}
	if markup == nil || !markup.ForceReply {
		t.Fatalf("complaint prompt must force a reply")
	}
}

func TestPaymentAlertButtons(t *testing.T) {
	text, markup := PaymentAlert(sampleOrder())

	if !strings.Contains(text, "Rp97.000") {
		t.Fatalf("alert must show the formatted total, got:\n%s", text)
	}
	if len(markup.InlineKeyboard) != 1 || len(markup.InlineKeyboard[0]) != 2 {
		t.Fatalf("expected one accept/reject row, got %v", markup.InlineKeyboard)
	}
	if markup.InlineKeyboard[0][0].CallbackData != "ACC_ORD-1001" {
		t.Fatalf("unexpected accept payload: %s", markup.InlineKeyboard[0][0].CallbackData)
	}
	if markup.InlineKeyboard[0][1].CallbackData != "REJECT_ORD-1001" {
		t.Fatalf("unexpected reject payload: %s", markup.InlineKeyboard[0][1].CallbackData)
	}
}

func TestOrderReportButtonsForUnfulfilledItemsOnly(t *testing.T) {
	order := sampleOrder()
	rep := fulfillment.Report{
		Logs:       []string{"#1 Netflix Premium x2: 2 unit terkirim", "#2 Joki Rank x1: produk manual, menunggu operator"},
		NeedManual: true,
	}

	text, markup := OrderReport(order, rep)

	if !strings.Contains(text, "2 unit terkirim") {
		t.Fatalf("report must contain allocator logs, got:\n%s", text)
	}

	// One fill row for the unfulfilled manual item plus the done row.
	if len(markup.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %v", markup.InlineKeyboard)
	}
	if got := markup.InlineKeyboard[0][0].CallbackData; got != "FILL_ORD-1001_1" {
		t.Fatalf("unexpected fill payload: %s", got)
	}
	if got := markup.InlineKeyboard[1][0].CallbackData; got != "DONE_ORD-1001" {
		t.Fatalf("unexpected done payload: %s", got)
	}
}

func TestComplaintAlertEscapesBuyerMessage(t *testing.T) {
	order := sampleOrder()
	order.Message = "akun <b>tidak</b> bisa login"

	text, markup := ComplaintAlert(order)

	if strings.Contains(text, "<b>tidak</b>") {
		t.Fatalf("buyer message must be HTML-escaped, got:\n%s", text)
	}
	if !strings.Contains(text, "&lt;b&gt;tidak&lt;/b&gt;") {
		t.Fatalf("expected escaped message, got:\n%s", text)
	}
	if got := markup.InlineKeyboard[0][0].CallbackData; got != "REPLY_COMPLAINT_ORD-1001" {
		t.Fatalf("unexpected reply payload: %s", got)
	}
}

func TestOrderIDIsEscapedLikeOtherFields(t *testing.T) {
	order := sampleOrder()
	order.ID = "ORD<1>"

	text, _ := PaymentAlert(order)
	if strings.Contains(text, "ORD<1>") {
		t.Fatalf("raw id in markup would make the transport reject the message:\n%s", text)
	}
	if !strings.Contains(text, "ORD&lt;1&gt;") {
		t.Fatalf("expected escaped id, got:\n%s", text)
	}

	if notice := StatusNotice(order); strings.Contains(notice, "ORD<1>") {
		t.Fatalf("raw id in status notice:\n%s", notice)
	}
}

func TestDashboard(t *testing.T) {
	text := Dashboard(4, 2)
	if !strings.Contains(text, "<b>4</b>") || !strings.Contains(text, "<b>2</b>") {
		t.Fatalf("dashboard must show both counts, got:\n%s", text)
	}
}
