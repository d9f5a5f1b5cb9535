package domain

// ConversationContext is the accumulated structured memory of a conversation,
// distinct from the raw message history. Each field has a fixed merge rule:
// scalars are overwritten by the newest value, TopicsDiscussed is append-only
// with de-duplication in first-seen order, and the boolean flags are monotonic
// (once set they stay set unless a patch explicitly resets them).
type ConversationContext struct {
	LastIntent               Intent            `json:"last_intent,omitempty"`
	TopicsDiscussed          []string          `json:"topics_discussed,omitempty"`
	PropertyDetailsRequested bool              `json:"property_details_requested,omitempty"`
	PriceDiscussed           bool              `json:"price_discussed,omitempty"`
	ViewingRequested         bool              `json:"viewing_requested,omitempty"`
	NegotiationStarted       bool              `json:"negotiation_started,omitempty"`
	Extra                    map[string]string `json:"extra,omitempty"`
}

// ContextPatch is the per-turn extract a module hands back. Flag pointers
// distinguish "no change" (nil) from set (true) and explicit reset (false).
type ContextPatch struct {
	LastIntent               Intent
	Topics                   []string
	PropertyDetailsRequested *bool
	PriceDiscussed           *bool
	ViewingRequested         *bool
	NegotiationStarted       *bool
	Extra                    map[string]string
}

// Flag is a convenience constructor for patch flag pointers.
func Flag(v bool) *bool { return &v }

// Merge applies a patch and returns the resulting context. The receiver is
// not modified, so Merge is safe to re-run against a freshly read context
// after a write conflict.
func (c ConversationContext) Merge(p ContextPatch) ConversationContext {
	out := c
	out.TopicsDiscussed = append([]string(nil), c.TopicsDiscussed...)
	if len(c.Extra) > 0 || len(p.Extra) > 0 {
		out.Extra = make(map[string]string, len(c.Extra)+len(p.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}

	if p.LastIntent != "" {
		out.LastIntent = p.LastIntent
	}
	for _, topic := range p.Topics {
		if topic == "" {
			continue
		}
		seen := false
		for _, existing := range out.TopicsDiscussed {
			if existing == topic {
				seen = true
				break
			}
		}
		if !seen {
			out.TopicsDiscussed = append(out.TopicsDiscussed, topic)
		}
	}
	out.PropertyDetailsRequested = mergeFlag(out.PropertyDetailsRequested, p.PropertyDetailsRequested)
	out.PriceDiscussed = mergeFlag(out.PriceDiscussed, p.PriceDiscussed)
	out.ViewingRequested = mergeFlag(out.ViewingRequested, p.ViewingRequested)
	out.NegotiationStarted = mergeFlag(out.NegotiationStarted, p.NegotiationStarted)
	for k, v := range p.Extra {
		out.Extra[k] = v
	}
	return out
}

// mergeFlag keeps a set flag set unless the patch carries an explicit reset.
func mergeFlag(current bool, patch *bool) bool {
	if patch == nil {
		return current
	}
	if *patch {
		return true
	}
	return false
}
