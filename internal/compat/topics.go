package compat

import (
	"math"
	"strings"
)

// Topic categories a prompt can touch
const (
	TopicPostpartum    = "postpartum"
	TopicMentalHealth  = "mental_health"
	TopicParenting     = "parenting"
	TopicRelationships = "relationships"
	TopicWorkLife      = "work_life"
	TopicHealth        = "health"
	TopicSleep         = "sleep"
	TopicAdvice        = "advice"
)

// DefaultTopicSimilarity is used when a candidate has no recent prompt
const DefaultTopicSimilarity = 0.5

const topicBias = 1.2

// A token belongs to a category when it contains one of the category's keywords.
var topicKeywords = map[string][]string{
	TopicPostpartum: {
		"postpartum", "postnatal", "baby", "babies", "newborn", "birth", "breastfe", "nursing",
		"c-section", "pregnan", "labour", "labor", "confinement", "recovery",
	},
	TopicMentalHealth: {
		"anxi", "depress", "stress", "overwhelm", "lonel", "isolat", "sad", "cry", "crying",
		"mood", "panic", "worr", "struggl", "therap", "mental", "burnout", "feel", "scared", "fear",
	},
	TopicParenting: {
		"parent", "toddler", "child", "kid", "mom", "mum", "mother", "dad", "father", "daycare",
		"tantrum", "discipline", "feeding", "weaning", "diaper", "nanny",
	},
	TopicRelationships: {
		"husband", "wife", "partner", "marriage", "married", "spouse", "relationship", "divorce",
		"in-law", "inlaw", "family", "friend", "boyfriend", "girlfriend",
	},
	TopicWorkLife: {
		"work", "job", "career", "office", "boss", "maternity", "colleague", "balance",
		"salary", "employ", "business", "freelanc",
	},
	TopicHealth: {
		"health", "pain", "doctor", "diet", "exercise", "weight", "heal", "body", "sick",
		"fitness", "hospital", "medic", "nutrition",
	},
	TopicSleep: {
		"sleep", "insomnia", "tired", "exhaust", "fatigue", "nap", "awake", "night", "bedtime",
	},
	TopicAdvice: {
		"advice", "tips", "help", "recommend", "suggest", "question", "guidance", "ideas",
	},
}

// Categories maps tokens to the set of topic categories they touch
func Categories(tokens []string) map[string]struct{} {
	cats := make(map[string]struct{})
	for _, tok := range tokens {
		for cat, keywords := range topicKeywords {
			if _, done := cats[cat]; done {
				continue
			}
			for _, kw := range keywords {
				if strings.Contains(tok, kw) {
					cats[cat] = struct{}{}
					break
				}
			}
		}
	}
	return cats
}

// TopicSimilarity compares two prompts in [0,1].
// Category overlap weighs 0.6, token overlap 0.4, each over the larger set;
// the blend is then biased up by 1.2 and clamped.
func TopicSimilarity(a, b string) float64 {
	ta, tb := tokenSet(Tokenize(a)), tokenSet(Tokenize(b))
	ca, cb := Categories(keys(ta)), Categories(keys(tb))

	catScore := ratio(overlap(ca, cb), max(len(ca), len(cb)))
	tokScore := ratio(overlap(ta, tb), max(len(ta), len(tb)))

	return math.Min(1, (0.6*catScore+0.4*tokScore)*topicBias)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
