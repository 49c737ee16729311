package compat

import (
	"math"
	"sort"

	"kindred-backend/internal/models"
)

// Candidate is a user in the pool together with their resolved recent prompt
type Candidate struct {
	User         *models.User
	RecentPrompt string
}

// Match is one ranked result for a seeker
type Match struct {
	CandidateID string                `json:"candidate_id"`
	Pseudonym   string                `json:"pseudonym"`
	Score       int                   `json:"score"`
	Profile     models.ProfilePreview `json:"profile"`
}

// Score returns the compatibility percentage between a seeker and a candidate
func Score(seeker *models.User, seekerPrompt string, c Candidate) int {
	topic := DefaultTopicSimilarity
	if c.RecentPrompt != "" {
		topic = TopicSimilarity(seekerPrompt, c.RecentPrompt)
	}
	profile := ProfileCompatibility(seeker, c.User)
	return int(math.Round((0.6*topic + 0.4*profile) * 100))
}

// Rank scores every candidate and returns the best limit, highest score first.
// Ties are broken by candidate id so the order is stable across refreshes.
func Rank(seeker *models.User, seekerPrompt string, candidates []Candidate, limit int) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.User == nil || c.User.ID == seeker.ID {
			continue
		}
		matches = append(matches, Match{
			CandidateID: c.User.ID,
			Pseudonym:   Pseudonym(seeker.ID, c.User.ID),
			Score:       Score(seeker, seekerPrompt, c),
			Profile:     c.User.Preview(false),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].CandidateID < matches[j].CandidateID
	})

	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
