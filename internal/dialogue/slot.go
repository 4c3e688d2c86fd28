package dialogue

// SlotName identifies a piece of information required before a generation
// command can be issued.
type SlotName string

const (
	// SlotSubject is what the user wants created.
	SlotSubject SlotName = "subject"
	// SlotDomainContext is the business or industry context the content
	// should target.
	SlotDomainContext SlotName = "domain_context"
)

// slotOrder fixes the order missing slots are reported and asked about.
var slotOrder = []SlotName{SlotSubject, SlotDomainContext}

// Satisfying vocabularies are deliberately permissive: generic action verbs
// satisfy Subject and generic business nouns satisfy DomainContext, so the
// clarification gate favors forward progress over interrogation. Tightening
// these lists is a product decision, not a bug fix; keep them in one place.
var slotVocabulary = map[SlotName][]string{
	SlotSubject: {
		"generate", "create", "make", "draw", "design", "show", "build",
		"produce", "render",
		"image", "visual", "banner", "poster", "flyer", "brochure",
		"deck", "pitch", "slide", "one-pager", "proposal", "graphic",
		"illustration", "infographic", "logo", "mockup", "ad",
	},
	SlotDomainContext: {
		"business", "company", "client", "customer", "market", "industry",
		"enterprise", "b2b", "brand", "sector", "vertical",
	},
}

// MissingSlots returns the required slots NOT satisfied by the utterance, in
// the fixed order [Subject, DomainContext]. Only a GenerationRequest tracks
// slots; every other intent returns nil. Satisfaction is additive: appending
// text to an utterance can only shrink the missing set, never grow it.
func MissingSlots(utterance string, intent Intent) []SlotName {
	if intent != IntentGeneration {
		return nil
	}
	text := normalize(utterance)

	var missing []SlotName
	for _, slot := range slotOrder {
		if !slotSatisfied(text, slot) {
			missing = append(missing, slot)
		}
	}
	return missing
}

func slotSatisfied(text string, slot SlotName) bool {
	if matchAny(text, slotVocabulary[slot]) {
		return true
	}
	// Domain keywords from the command table also satisfy DomainContext, so
	// "for healthcare" counts without duplicating the closed vocabulary here.
	if slot == SlotDomainContext {
		return matchAny(text, domainKeywords)
	}
	return false
}
