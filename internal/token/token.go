// Package token encodes the correlation tokens and callback actions that tie
// operator chat interactions back to orders without any server-side session
// state.
//
// Free-text flows (manual fill, complaint reply) embed a hidden token in the
// outgoing prompt; when the operator replies to that prompt, the token is
// recovered from the quoted original message. Button flows are immediate and
// carry their whole intent in the callback payload instead.
package token

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Kind string

const (
	// KindData routes operator-supplied fulfillment data to one order item.
	KindData Kind = "DATA"
	// KindComplaint routes an operator reply back to the buyer's complaint.
	KindComplaint Kind = "COMPLAINT"
)

// Token is a parsed correlation token of the wire form
// KIND|orderId or KIND|orderId|itemIndex.
type Token struct {
	Kind      Kind
	OrderID   string
	ItemIndex int
}

func (t Token) String() string {
	if t.Kind == KindData {
		return fmt.Sprintf("%s|%s|%d", t.Kind, t.OrderID, t.ItemIndex)
	}
	return fmt.Sprintf("%s|%s", t.Kind, t.OrderID)
}

// ManualFill builds the token embedded in a fill prompt for one order item.
func ManualFill(orderID string, itemIndex int) Token {
	return Token{Kind: KindData, OrderID: orderID, ItemIndex: itemIndex}
}

// ComplaintReply builds the token embedded in a complaint-reply prompt.
func ComplaintReply(orderID string) Token {
	return Token{Kind: KindComplaint, OrderID: orderID}
}

// tokenRe matches a token anywhere inside quoted message text. Order ids are
// restricted to the characters ValidOrderID admits so an unrelated "|" in
// surrounding prose cannot produce a bogus match.
var tokenRe = regexp.MustCompile(`(DATA|COMPLAINT)\|([A-Za-z0-9_.:-]+)(?:\|(\d+))?`)

// idRe is the full-string form of the same charset.
var idRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ValidOrderID reports whether id can be embedded in correlation tokens and
// callback payloads and recovered unambiguously. Ids containing "|", spaces
// or markup characters would either fail to parse or mis-parse into a
// different id, so order intake must reject anything outside this set.
func ValidOrderID(id string) bool {
	return idRe.MatchString(id)
}

// Parse recovers a token from quoted message text. The boolean is false when
// no recognizable token is present; callers treat that as an unrelated reply
// and ignore it rather than surfacing an error.
func Parse(text string) (Token, bool) {
	m := tokenRe.FindStringSubmatch(text)
	if m == nil {
		return Token{}, false
	}
	t := Token{Kind: Kind(m[1]), OrderID: m[2]}
	if t.Kind == KindData {
		if m[3] == "" {
			return Token{}, false
		}
		idx, err := strconv.Atoi(m[3])
		if err != nil {
			return Token{}, false
		}
		t.ItemIndex = idx
	}
	return t, true
}

// ActionKind enumerates the button-triggered operator commands.
type ActionKind string

const (
	ActionAccept         ActionKind = "ACC"
	ActionReject         ActionKind = "REJECT"
	ActionFill           ActionKind = "FILL"
	ActionDone           ActionKind = "DONE"
	ActionReplyComplaint ActionKind = "REPLY_COMPLAINT"
)

// Action is a synchronous command encoded in an inline button's callback
// payload. Unlike tokens, actions need no reply round-trip.
type Action struct {
	Kind      ActionKind
	OrderID   string
	ItemIndex int
}

// Callback renders the action as a callback_data payload.
func (a Action) Callback() string {
	if a.Kind == ActionFill {
		return fmt.Sprintf("%s_%s_%d", a.Kind, a.OrderID, a.ItemIndex)
	}
	return fmt.Sprintf("%s_%s", a.Kind, a.OrderID)
}

// ParseCallback decodes a callback payload back into an Action. Order ids
// may themselves contain underscores, so the FILL item index is taken from
// the last underscore-separated segment.
func ParseCallback(data string) (Action, bool) {
	for _, kind := range []ActionKind{ActionReplyComplaint, ActionReject, ActionAccept, ActionFill, ActionDone} {
		prefix := string(kind) + "_"
		if !strings.HasPrefix(data, prefix) {
			continue
		}
		rest := data[len(prefix):]
		if rest == "" {
			return Action{}, false
		}
		if kind != ActionFill {
			return Action{Kind: kind, OrderID: rest}, true
		}
		cut := strings.LastIndex(rest, "_")
		if cut <= 0 || cut == len(rest)-1 {
			return Action{}, false
		}
		idx, err := strconv.Atoi(rest[cut+1:])
		if err != nil || idx < 0 {
			return Action{}, false
		}
		return Action{Kind: kind, OrderID: rest[:cut], ItemIndex: idx}, true
	}
	return Action{}, false
}
