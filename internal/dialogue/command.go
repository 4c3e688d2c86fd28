package dialogue

import "strings"

// StructuredCommand is the fully-resolved, renderer-ready description of
// what content to produce. Domain and Elements use the closed vocabulary the
// render service understands.
type StructuredCommand struct {
	Subject  string   `json:"subject"`
	Domain   string   `json:"domain"`
	Elements []string `json:"elements"`
	Style    string   `json:"style"`
}

// baseElement is always included so rendered content keeps B2B framing.
const baseElement = "b2b-framing"

const (
	defaultDomain = "enterprise"
	defaultStyle  = "corporate"
)

var defaultDomainElements = []string{"office-tower"}

// domainRule binds trigger keywords to a domain tag and that domain's
// default visual elements. Rules are checked top-to-bottom, first match wins.
type domainRule struct {
	keywords []string
	domain   string
	elements []string
}

var domainRules = []domainRule{
	{
		keywords: []string{"retail", "store", "shop", "ecommerce", "e-commerce", "pos"},
		domain:   "retail",
		elements: []string{"storefront", "pos-terminal"},
	},
	{
		keywords: []string{"healthcare", "clinic", "hospital", "medical", "pharma", "patient"},
		domain:   "healthcare",
		elements: []string{"clinic-desk", "ehr-dashboard"},
	},
	{
		keywords: []string{"finance", "bank", "banking", "fintech", "insurance", "payments"},
		domain:   "finance",
		elements: []string{"branch-office", "transaction-feed"},
	},
	{
		keywords: []string{"logistics", "shipping", "fleet", "warehouse", "delivery", "supply chain"},
		domain:   "logistics",
		elements: []string{"fleet-map", "warehouse-floor"},
	},
	{
		keywords: []string{"hospitality", "hotel", "restaurant", "tourism", "travel"},
		domain:   "hospitality",
		elements: []string{"front-desk", "guest-app"},
	},
	{
		keywords: []string{"education", "school", "university", "campus", "students"},
		domain:   "education",
		elements: []string{"campus-gate", "smart-classroom"},
	},
}

// domainKeywords is the flattened closed domain vocabulary, shared with the
// intent classifier and the slot extractor.
var domainKeywords = flattenDomainKeywords()

func flattenDomainKeywords() []string {
	var all []string
	for _, r := range domainRules {
		all = append(all, r.keywords...)
	}
	return all
}

// elementRule adds a visual element when its trigger keywords appear.
type elementRule struct {
	keywords []string
	element  string
}

var elementRules = []elementRule{
	{keywords: []string{"security", "secure", "firewall", "protection"}, element: "security-shield"},
	{keywords: []string{"5g", "network", "coverage", "connectivity", "broadband"}, element: "network-coverage"},
	{keywords: []string{"cloud", "saas", "hosting"}, element: "cloud-stack"},
	{keywords: []string{"iot", "sensor", "sensors", "smart device"}, element: "iot-sensors"},
	{keywords: []string{"mobile", "smartphone", "app", "device"}, element: "device-lineup"},
	{keywords: []string{"data", "analytics", "dashboard"}, element: "kpi-dashboard"},
}

var styleRules = []struct {
	keywords []string
	style    string
}{
	{keywords: []string{"minimal", "clean", "simple"}, style: "minimal"},
	{keywords: []string{"bold", "vibrant", "striking"}, style: "bold"},
	{keywords: []string{"playful", "fun", "friendly"}, style: "playful"},
}

// TranslateCommand deterministically maps an utterance into the renderer's
// controlled vocabulary: domain from a priority-ordered keyword table
// (default when nothing matches), elements as the union of the base B2B
// element, the domain defaults, and keyword-triggered tags. Duplicates are
// removed with insertion order preserved.
func TranslateCommand(utterance string) *StructuredCommand {
	text := normalize(utterance)

	domain := defaultDomain
	domainElements := defaultDomainElements
	for _, r := range domainRules {
		if matchAny(text, r.keywords) {
			domain = r.domain
			domainElements = r.elements
			break
		}
	}

	elements := []string{baseElement}
	seen := map[string]bool{baseElement: true}
	add := func(el string) {
		if !seen[el] {
			seen[el] = true
			elements = append(elements, el)
		}
	}
	for _, el := range domainElements {
		add(el)
	}
	for _, r := range elementRules {
		if matchAny(text, r.keywords) {
			add(r.element)
		}
	}

	style := defaultStyle
	for _, r := range styleRules {
		if matchAny(text, r.keywords) {
			style = r.style
			break
		}
	}

	subject := strings.TrimSpace(utterance)
	if subject == "" {
		subject = "b2b campaign visual"
	}

	return &StructuredCommand{
		Subject:  subject,
		Domain:   domain,
		Elements: elements,
		Style:    style,
	}
}

// clone returns a deep copy so stored state can be snapshotted safely.
func (c *StructuredCommand) clone() *StructuredCommand {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Elements = append([]string(nil), c.Elements...)
	return &cp
}
