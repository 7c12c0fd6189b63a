package service

import (
	"net/url"
	"strings"

	"vendaschat/internal/model"
)

// RedirectEffect tells the widget to open an external URL in a new context
type RedirectEffect struct {
	URL string `json:"url"`
}

// LeadCaptureEffect tells the widget to open the lead-capture form bound to a
// button. Prefill carries the previously captured identity; Locked marks the
// WhatsApp/PIN fields read-only because a trial already exists for them.
type LeadCaptureEffect struct {
	ButtonID string      `json:"buttonId"`
	Prefill  *model.Lead `json:"prefill,omitempty"`
	Locked   bool        `json:"locked"`
}

// ReplyEffect carries the bot response and the new tree position
type ReplyEffect struct {
	Text      string             `json:"text"`
	MediaURL  string             `json:"mediaUrl,omitempty"`
	MediaType string             `json:"mediaType,omitempty"`
	Descend   bool               `json:"descend"`
	Buttons   []model.ButtonNode `json:"buttons"`
}

// ClickPlan is the ordered outcome of one button click. A single click can
// carry zero, one or many effects; the order is fixed so external navigation
// never blocks local state changes. When LeadCapture is set the click cycle
// stops there and Reply stays nil, even if the button has sub-buttons —
// observed behavior of the original flow, kept as-is.
type ClickPlan struct {
	Redirect    *RedirectEffect
	LeadCapture *LeadCaptureEffect
	Reply       *ReplyEffect
}

// paymentLabels trigger credential injection into the redirect target
var paymentLabels = []string{"PAGAMENTO", "PAGAR"}

// ResolveClick decides which effects a click on btn produces given the
// session's captured identity. Pure: callers persist the results.
func ResolveClick(btn model.ButtonNode, sess model.VisitorSession) ClickPlan {
	var plan ClickPlan

	if btn.RedirectURL != "" {
		plan.Redirect = &RedirectEffect{URL: redirectTarget(btn, sess)}
	}

	if btn.APIURL != "" {
		eff := &LeadCaptureEffect{ButtonID: btn.ID}
		if sess.Lead != nil {
			lead := *sess.Lead
			eff.Prefill = &lead
			eff.Locked = sess.Credentials != nil
		}
		plan.LeadCapture = eff
		return plan
	}

	reply := &ReplyEffect{
		Text:      btn.ResponseText,
		MediaURL:  btn.MediaURL,
		MediaType: btn.MediaType,
	}
	if len(btn.SubButtons) > 0 {
		reply.Descend = true
		reply.Buttons = btn.SubButtons
	}
	plan.Reply = reply
	return plan
}

// redirectTarget builds the navigation URL. Payment buttons get the visitor's
// issued credentials appended as query parameters so the checkout page can
// identify the trial; before issuance the whatsapp/pin pair stands in.
func redirectTarget(btn model.ButtonNode, sess model.VisitorSession) string {
	if !isPaymentLabel(btn.Label) {
		return btn.RedirectURL
	}

	u, err := url.Parse(btn.RedirectURL)
	if err != nil {
		return btn.RedirectURL
	}
	q := u.Query()
	switch {
	case sess.Credentials != nil:
		q.Set("username", sess.Credentials.Username)
		q.Set("password", sess.Credentials.Password)
	case sess.Lead != nil:
		q.Set("whatsapp", sess.Lead.WhatsApp)
		q.Set("pin", sess.Lead.PIN)
	default:
		return btn.RedirectURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isPaymentLabel(label string) bool {
	upper := strings.ToUpper(label)
	for _, kw := range paymentLabels {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
