package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/mudler/xlog"

	"github.com/maisonhq/chatcore/internal/adapter/llm"
	"github.com/maisonhq/chatcore/internal/adapter/propertydata"
	"github.com/maisonhq/chatcore/internal/domain"
)

// ModuleRequest carries everything a conversation module may need for one
// turn. Property fields are zero for general-conversation turns.
type ModuleRequest struct {
	Message       string
	Intent        domain.Intent
	Kind          domain.ConversationKind
	Context       domain.ConversationContext
	History       []llm.Turn
	PropertyID    string
	Role          domain.ConversationRole
	CounterpartID string
}

// Module handles one conversation turn for the intents it is registered
// under. It returns the assistant reply plus the context updates the turn
// produced. A module must not persist anything itself.
type Module interface {
	Name() string
	Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error)
}

// moduleRegistry is the closed dispatch table mapping conversation kind and
// intent to a module. Selection is data-independent apart from the
// general_question sub-split, which routes greetings and site questions to
// their dedicated modules.
type moduleRegistry struct {
	general  map[domain.Intent]Module
	property map[domain.Intent]Module

	greeting    Module
	websiteInfo Module
	fallback    Module
}

func newModuleRegistry(llmClient llm.Client, properties *propertydata.Client) *moduleRegistry {
	greeting := &greetingModule{llm: llmClient}
	websiteInfo := &websiteInfoModule{llm: llmClient}
	advisory := &advisoryModule{llm: llmClient}
	listings := &propertyListingsModule{llm: llmClient}
	propertyCtx := &propertyContextModule{llm: llmClient, properties: properties}
	pricing := &pricingModule{llm: llmClient, properties: properties}
	negotiation := &negotiationModule{llm: llmClient}
	communication := &communicationModule{llm: llmClient}

	return &moduleRegistry{
		general: map[domain.Intent]Module{
			domain.IntentPropertyInquiry:     listings,
			domain.IntentAvailabilityBooking: listings,
			domain.IntentPriceInquiry:        listings,
			domain.IntentGeneralQuestion:     advisory,
			domain.IntentBuyerSellerComm:     advisory,
			domain.IntentNegotiation:         advisory,
		},
		property: map[domain.Intent]Module{
			domain.IntentPropertyInquiry:     propertyCtx,
			domain.IntentAvailabilityBooking: propertyCtx,
			domain.IntentPriceInquiry:        pricing,
			domain.IntentNegotiation:         negotiation,
			domain.IntentBuyerSellerComm:     communication,
			domain.IntentGeneralQuestion:     propertyCtx,
		},
		greeting:    greeting,
		websiteInfo: websiteInfo,
		fallback:    &fallbackModule{},
	}
}

// Select resolves the module for a turn. Unknown intents always land on the
// fallback module regardless of kind.
func (r *moduleRegistry) Select(kind domain.ConversationKind, intent domain.Intent, message string) Module {
	if intent == domain.IntentUnknown {
		return r.fallback
	}
	if kind == domain.KindGeneral && intent == domain.IntentGeneralQuestion {
		switch {
		case isGreeting(message):
			return r.greeting
		case isWebsiteQuestion(message):
			return r.websiteInfo
		}
	}

	table := r.general
	if kind == domain.KindProperty {
		table = r.property
	}
	if m, ok := table[intent]; ok {
		return m
	}
	return r.fallback
}

func isGreeting(message string) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	for _, g := range []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "thanks", "thank you", "bye", "goodbye"} {
		if msg == g || strings.HasPrefix(msg, g+" ") || strings.HasPrefix(msg, g+",") || strings.HasPrefix(msg, g+"!") {
			return true
		}
	}
	return false
}

func isWebsiteQuestion(message string) bool {
	msg := strings.ToLower(message)
	return containsAny(msg, "website", "this site", "the site", "platform", "sign up", "register", "account", "log in", "login", "how does this work", "list my property", "post my property")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// generate runs the LLM with a degradation template. Generation failures
// never fail a turn; the module answers from the template instead.
func generate(ctx context.Context, client llm.Client, module, systemPrompt string, history []llm.Turn, userPrompt, fallback string) (string, domain.ContextPatch, error) {
	reply, err := client.Generate(ctx, systemPrompt, history, userPrompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			xlog.Warn("Generation failed, using canned reply", "module", module, "error", err.Error())
		}
		reply = fallback
	}
	return reply, domain.ContextPatch{}, nil
}

// greetingModule handles salutations and small talk in general conversations.
type greetingModule struct {
	llm llm.Client
}

func (m *greetingModule) Name() string { return "greeting" }

func (m *greetingModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	const prompt = "You are a friendly real estate assistant. Greet the user warmly in one or two sentences and invite them to ask about properties, prices or how the platform works."
	return generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		"Hello! I'm your real estate assistant. Ask me anything about properties, prices or how this platform works.")
}

// websiteInfoModule answers questions about the platform itself.
type websiteInfoModule struct {
	llm llm.Client
}

func (m *websiteInfoModule) Name() string { return "website_info" }

func (m *websiteInfoModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	const prompt = "You are the help assistant for a real estate marketplace. Explain how the platform works: browsing listings, contacting sellers, booking viewings and listing a property. Be concise and concrete."
	return generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		"On this platform you can browse property listings, chat with sellers about a specific property, book viewings and list your own property for sale or rent.")
}

// advisoryModule gives general real estate guidance not tied to one property.
type advisoryModule struct {
	llm llm.Client
}

func (m *advisoryModule) Name() string { return "advisory" }

func (m *advisoryModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	const prompt = "You are a knowledgeable real estate advisor. Answer general questions about buying, selling, renting, financing and the housing market. Do not invent details about specific listings."
	return generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		"Happy to help with general real estate questions. Could you tell me a bit more about what you are looking for?")
}

// propertyListingsModule handles property search questions that arrive in a
// general conversation, where no single property is in scope yet.
type propertyListingsModule struct {
	llm llm.Client
}

func (m *propertyListingsModule) Name() string { return "property_listings" }

func (m *propertyListingsModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	const prompt = "You are a real estate assistant helping a visitor find listings. Ask for their criteria (location, budget, bedrooms, buy or rent) and point them to the listings search. You have no live listing data in this conversation."
	reply, patch, err := generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		"I can help you find the right property. What location and budget do you have in mind, and are you looking to buy or rent?")
	if req.Intent == domain.IntentPriceInquiry {
		patch.PriceDiscussed = domain.Flag(true)
	}
	return reply, patch, err
}

// propertyContextModule answers questions about the conversation's property,
// enriched with live details when the property service is reachable.
type propertyContextModule struct {
	llm        llm.Client
	properties *propertydata.Client
}

func (m *propertyContextModule) Name() string { return "property_context" }

func (m *propertyContextModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	prompt := fmt.Sprintf("You are a real estate assistant for property %s. The user is the %s in this conversation. Answer questions about this property only.", req.PropertyID, req.Role)
	if details := m.fetchDetails(ctx, req.PropertyID); details != "" {
		prompt += " Known details: " + details
	}

	reply, patch, err := generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		fmt.Sprintf("Let me check the details of property %s for you. What would you like to know about it?", req.PropertyID))

	switch req.Intent {
	case domain.IntentPropertyInquiry:
		patch.PropertyDetailsRequested = domain.Flag(true)
	case domain.IntentAvailabilityBooking:
		patch.ViewingRequested = domain.Flag(true)
	}
	return reply, patch, err
}

func (m *propertyContextModule) fetchDetails(ctx context.Context, propertyID string) string {
	details, err := m.properties.GetProperty(ctx, propertyID)
	if err != nil {
		xlog.Debug("Property details unavailable", "property_id", propertyID, "error", err.Error())
		return ""
	}
	return fmt.Sprintf("%s, %s in %s, price %.0f, %d bedrooms, %s. %s",
		details.Name, details.Type, details.Location, details.Price, details.Bedrooms, details.Availability, details.Summary)
}

// pricingModule handles price questions inside a property conversation.
type pricingModule struct {
	llm        llm.Client
	properties *propertydata.Client
}

func (m *pricingModule) Name() string { return "pricing" }

func (m *pricingModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	prompt := fmt.Sprintf("You are a real estate assistant discussing the price of property %s with the %s. State the listed price when known and answer pricing questions factually. Do not negotiate on anyone's behalf.", req.PropertyID, req.Role)
	if details, err := m.properties.GetProperty(ctx, req.PropertyID); err == nil {
		prompt += fmt.Sprintf(" The listed price is %.0f.", details.Price)
	}

	reply, patch, err := generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		"I can go over the pricing of this property with you. Are you asking about the listed price or about additional costs?")
	patch.PriceDiscussed = domain.Flag(true)
	return reply, patch, err
}

// negotiationModule handles offers and counter-offers.
type negotiationModule struct {
	llm llm.Client
}

func (m *negotiationModule) Name() string { return "negotiation" }

func (m *negotiationModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	prompt := fmt.Sprintf("You are a real estate assistant supporting a negotiation over property %s. The user is the %s. Acknowledge offers, keep a neutral tone and remind the user that the %s decides. Never accept or reject an offer yourself.",
		req.PropertyID, req.Role, req.Role.Counterpart())

	reply, patch, err := generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		fmt.Sprintf("I've noted your offer. The final decision rests with the %s; would you like me to pass your offer along?", req.Role.Counterpart()))
	patch.NegotiationStarted = domain.Flag(true)
	return reply, patch, err
}

// communicationModule handles buyer/seller messages that carry communication
// intent but were not detected as explicit forward requests.
type communicationModule struct {
	llm llm.Client
}

func (m *communicationModule) Name() string { return "communication" }

func (m *communicationModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	prompt := fmt.Sprintf("You are a real estate assistant mediating between a buyer and a seller over property %s. The user is the %s. If they want something relayed to the %s, tell them to phrase it as a direct request such as \"please ask the %s\" so it can be forwarded.",
		req.PropertyID, req.Role, req.Role.Counterpart(), req.Role.Counterpart())
	return generate(ctx, m.llm, m.Name(), prompt, req.History, req.Message,
		fmt.Sprintf("If you'd like me to relay something to the %s, just say for example \"please ask the %s\" followed by your question.", req.Role.Counterpart(), req.Role.Counterpart()))
}

// fallbackModule answers unknown intents with a deterministic clarifying
// question. It never calls the LLM: when classification already failed or
// fell under the threshold, guessing a richer answer helps nobody.
type fallbackModule struct{}

func (m *fallbackModule) Name() string { return "fallback" }

func (m *fallbackModule) Handle(ctx context.Context, req ModuleRequest) (string, domain.ContextPatch, error) {
	if req.Kind == domain.KindProperty {
		return "I'm not sure I understood that. Are you asking about this property's details, its price, a viewing, or would you like me to pass a message to the other party?",
			domain.ContextPatch{}, nil
	}
	return "I'm not sure I understood that. I can help you find properties, answer pricing questions or explain how this platform works. What would you like to do?",
		domain.ContextPatch{}, nil
}
