// Package notify renders operator-facing chat messages: dashboards, order
// reports and the force-reply prompts of the manual-completion flow. Every
// function is pure: counts and order state are passed in by the caller,
// which must read them fresh from the store at render time.
package notify

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"lapakdigital/backend/internal/domain"
	"lapakdigital/backend/internal/fulfillment"
	"lapakdigital/backend/internal/telegram"
	"lapakdigital/backend/internal/token"
)

// amounts are rendered with Indonesian digit grouping (35000 -> 35.000);
// one fixed rule, no locale negotiation.
var printer = message.NewPrinter(language.Indonesian)

func FormatAmount(v int64) string {
	return printer.Sprintf("%d", v)
}

// Dashboard summarizes the operator's queue. Both counts must be recomputed
// from the store by the caller immediately before rendering.
func Dashboard(pendingManual int, openComplaints int) string {
	var b strings.Builder
	b.WriteString("<b>Dashboard Operator</b>\n\n")
	fmt.Fprintf(&b, "Pesanan menunggu penanganan: <b>%d</b>\n", pendingManual)
	fmt.Fprintf(&b, "Komplain terbuka: <b>%d</b>", openComplaints)
	return b.String()
}

// PaymentAlert announces a confirmed payment whose fulfillment is deferred
// to an explicit operator decision.
func PaymentAlert(order *domain.Order) (string, *telegram.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("<b>Pembayaran masuk</b>\n\n")
	writeOrderHeader(&b, order)
	writeItemLines(&b, order)

	markup := &telegram.ReplyMarkup{
		InlineKeyboard: [][]telegram.InlineButton{{
			{Text: "Terima", CallbackData: token.Action{Kind: token.ActionAccept, OrderID: order.ID}.Callback()},
			{Text: "Tolak", CallbackData: token.Action{Kind: token.ActionReject, OrderID: order.ID}.Callback()},
		}},
	}
	return b.String(), markup
}

// OrderReport renders the allocator's per-item log. Items still waiting for
// data get a fill button; the report always offers the manual done override.
func OrderReport(order *domain.Order, rep fulfillment.Report) (string, *telegram.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("<b>Laporan pemrosesan</b>\n\n")
	writeOrderHeader(&b, order)
	for _, line := range rep.Logs {
		fmt.Fprintf(&b, "• %s\n", html.EscapeString(line))
	}
	fmt.Fprintf(&b, "\nStatus: <code>%s</code>", order.Status)

	var rows [][]telegram.InlineButton
	for i, item := range order.Items {
		if item.Fulfilled() {
			continue
		}
		rows = append(rows, []telegram.InlineButton{{
			Text:         fmt.Sprintf("Isi data #%d %s", i+1, item.Name),
			CallbackData: token.Action{Kind: token.ActionFill, OrderID: order.ID, ItemIndex: i}.Callback(),
		}})
	}
	rows = append(rows, []telegram.InlineButton{{
		Text:         "Tandai selesai",
		CallbackData: token.Action{Kind: token.ActionDone, OrderID: order.ID}.Callback(),
	}})
	return b.String(), &telegram.ReplyMarkup{InlineKeyboard: rows}
}

// ComplaintAlert announces a new buyer complaint.
func ComplaintAlert(order *domain.Order) (string, *telegram.ReplyMarkup) {
	var b strings.Builder
	b.WriteString("<b>Komplain baru</b>\n\n")
	writeOrderHeader(&b, order)
	if order.Message != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>\n", html.EscapeString(order.Message))
	}

	markup := &telegram.ReplyMarkup{
		InlineKeyboard: [][]telegram.InlineButton{{
			{Text: "Balas komplain", CallbackData: token.Action{Kind: token.ActionReplyComplaint, OrderID: order.ID}.Callback()},
		}},
	}
	return b.String(), markup
}

// FillPrompt asks the operator for one item's data. The correlation token is
// embedded in a hidden span and the markup forces the client to capture the
// operator's next message as a reply to this prompt.
func FillPrompt(order *domain.Order, itemIndex int) (string, *telegram.ReplyMarkup) {
	item := order.Items[itemIndex]
	var b strings.Builder
	fmt.Fprintf(&b, "Kirim data untuk <b>%s</b> (pesanan <code>%s</code>, %d unit).\n",
		html.EscapeString(item.Name), html.EscapeString(order.ID), item.Qty)
	b.WriteString("Balas pesan ini, satu unit per baris.\n")
	b.WriteString(telegram.Spoiler(token.ManualFill(order.ID, itemIndex).String()))
	return b.String(), &telegram.ReplyMarkup{ForceReply: true}
}

// ComplaintPrompt asks the operator for the complaint-resolution text.
func ComplaintPrompt(order *domain.Order) (string, *telegram.ReplyMarkup) {
	var b strings.Builder
	fmt.Fprintf(&b, "Balas pesan ini dengan jawaban untuk komplain pesanan <code>%s</code>.\n", html.EscapeString(order.ID))
	b.WriteString(telegram.Spoiler(token.ComplaintReply(order.ID).String()))
	return b.String(), &telegram.ReplyMarkup{ForceReply: true}
}

// FillConfirmation acknowledges stored manual data for one item.
func FillConfirmation(order *domain.Order, itemIndex int, units int) string {
	item := order.Items[itemIndex]
	return fmt.Sprintf("Data untuk <b>%s</b> (pesanan <code>%s</code>) tersimpan: %d baris.",
		html.EscapeString(item.Name), html.EscapeString(order.ID), units)
}

// ComplaintReplyConfirmation acknowledges a forwarded complaint reply.
func ComplaintReplyConfirmation(order *domain.Order) string {
	return fmt.Sprintf("Balasan komplain untuk pesanan <code>%s</code> diteruskan ke pembeli.", html.EscapeString(order.ID))
}

// StatusNotice is the generic one-liner for status transitions.
func StatusNotice(order *domain.Order) string {
	return fmt.Sprintf("Pesanan <code>%s</code> sekarang berstatus <code>%s</code>.", html.EscapeString(order.ID), order.Status)
}

// InternalFailure surfaces an internal processing error to the operator;
// webhook callers never see it.
func InternalFailure(context string, err error) string {
	return fmt.Sprintf("<b>Gagal memproses</b>\n%s: %s", html.EscapeString(context), html.EscapeString(err.Error()))
}

func writeOrderHeader(b *strings.Builder, order *domain.Order) {
	fmt.Fprintf(b, "Pesanan: <code>%s</code>\n", html.EscapeString(order.ID))
	fmt.Fprintf(b, "Total: Rp%s\n", FormatAmount(order.Total))
	if order.BuyerContact != "" {
		fmt.Fprintf(b, "Pembeli: %s\n", html.EscapeString(order.BuyerContact))
	}
}

func writeItemLines(b *strings.Builder, order *domain.Order) {
	for i, item := range order.Items {
		fmt.Fprintf(b, "%d. %s x%d @ Rp%s\n", i+1, html.EscapeString(item.Name), item.Qty, FormatAmount(item.Price))
	}
}
