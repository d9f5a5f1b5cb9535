package domain

import (
	"reflect"
	"testing"
)

func TestMergeTopicsDedupFirstSeenOrder(t *testing.T) {
	ctx := ConversationContext{}
	ctx = ctx.Merge(ContextPatch{Topics: []string{"pricing", "location"}})
	ctx = ctx.Merge(ContextPatch{Topics: []string{"location", "schools", "pricing"}})
	ctx = ctx.Merge(ContextPatch{Topics: []string{"pricing"}})

	want := []string{"pricing", "location", "schools"}
	if !reflect.DeepEqual(ctx.TopicsDiscussed, want) {
		t.Fatalf("topics = %v, want %v", ctx.TopicsDiscussed, want)
	}
}

func TestMergeScalarOverwrite(t *testing.T) {
	ctx := ConversationContext{LastIntent: IntentGeneralQuestion}
	ctx = ctx.Merge(ContextPatch{LastIntent: IntentPriceInquiry})
	if ctx.LastIntent != IntentPriceInquiry {
		t.Fatalf("last intent = %s, want %s", ctx.LastIntent, IntentPriceInquiry)
	}

	// Empty intent in a patch leaves the scalar untouched.
	ctx = ctx.Merge(ContextPatch{Topics: []string{"area"}})
	if ctx.LastIntent != IntentPriceInquiry {
		t.Fatalf("last intent overwritten by empty patch: %s", ctx.LastIntent)
	}
}

func TestMergeMonotonicFlags(t *testing.T) {
	ctx := ConversationContext{}
	ctx = ctx.Merge(ContextPatch{PriceDiscussed: Flag(true)})
	ctx = ctx.Merge(ContextPatch{Topics: []string{"viewing"}})
	if !ctx.PriceDiscussed {
		t.Fatal("flag dropped by unrelated patch")
	}

	// Explicit reset is the only way back to false.
	ctx = ctx.Merge(ContextPatch{PriceDiscussed: Flag(false)})
	if ctx.PriceDiscussed {
		t.Fatal("explicit reset did not clear flag")
	}
}

func TestMergeDoesNotMutateReceiver(t *testing.T) {
	orig := ConversationContext{TopicsDiscussed: []string{"a"}, Extra: map[string]string{"k": "v"}}
	merged := orig.Merge(ContextPatch{Topics: []string{"b"}, Extra: map[string]string{"k": "w"}})

	if len(orig.TopicsDiscussed) != 1 || orig.Extra["k"] != "v" {
		t.Fatalf("receiver mutated: %+v", orig)
	}
	if len(merged.TopicsDiscussed) != 2 || merged.Extra["k"] != "w" {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	base := ConversationContext{TopicsDiscussed: []string{"pricing"}}
	patch := ContextPatch{
		LastIntent:     IntentNegotiation,
		Topics:         []string{"offer", "pricing"},
		PriceDiscussed: Flag(true),
	}
	a := base.Merge(patch)
	b := base.Merge(patch)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("merge not deterministic: %+v vs %+v", a, b)
	}
}
