package compat

import (
	"strings"
	"time"

	"kindred-backend/internal/models"
)

// Point budget for profile compatibility
const (
	maxAgePoints       = 20
	maxHobbyPoints     = 30
	maxLifeStagePoints = 35
	maxGeoPoints       = 25

	MaxProfilePoints = maxAgePoints + maxHobbyPoints + maxLifeStagePoints + maxGeoPoints
)

// ProfilePoints scores how compatible two profiles are, out of MaxProfilePoints.
// A field only contributes when both sides have it.
func ProfilePoints(a, b *models.User) int {
	return agePoints(a, b) + hobbyPoints(a, b) + lifeStagePoints(a, b) + geoPoints(a, b)
}

// ProfileCompatibility is ProfilePoints normalized to [0,1]
func ProfileCompatibility(a, b *models.User) float64 {
	return float64(ProfilePoints(a, b)) / MaxProfilePoints
}

func agePoints(a, b *models.User) int {
	if a.Age == nil || b.Age == nil {
		return 0
	}
	diff := abs(*a.Age - *b.Age)
	if diff > 5 {
		return 0
	}
	return maxAgePoints - 2*diff
}

func hobbyPoints(a, b *models.User) int {
	if len(a.Hobbies) == 0 || len(b.Hobbies) == 0 {
		return 0
	}
	mine := make(map[string]struct{}, len(a.Hobbies))
	for _, h := range a.Hobbies {
		mine[normalize(h)] = struct{}{}
	}
	shared := 0
	seen := make(map[string]struct{}, len(b.Hobbies))
	for _, h := range b.Hobbies {
		h = normalize(h)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if _, ok := mine[h]; ok {
			shared++
		}
	}
	return min(shared*10, maxHobbyPoints)
}

func lifeStagePoints(a, b *models.User) int {
	points := 0
	if a.MaritalStatus != nil && b.MaritalStatus != nil && normalize(*a.MaritalStatus) == normalize(*b.MaritalStatus) {
		points += 12
	}
	if a.HasBaby != nil && b.HasBaby != nil && *a.HasBaby == *b.HasBaby {
		points += 8
	}
	if a.BabyBirthDate != nil && b.BabyBirthDate != nil {
		points += babyAgePoints(*a.BabyBirthDate, *b.BabyBirthDate)
	}
	return min(points, maxLifeStagePoints)
}

func babyAgePoints(a, b time.Time) int {
	days := a.Sub(b).Hours() / 24
	if days < 0 {
		days = -days
	}
	switch {
	case days <= 30:
		return 15
	case days <= 90:
		return 10
	case days <= 180:
		return 5
	}
	return 0
}

func geoPoints(a, b *models.User) int {
	if a.Location == nil || b.Location == nil {
		return 0
	}
	la, lb := normalize(*a.Location), normalize(*b.Location)
	if la == "" || lb == "" {
		return 0
	}
	if la == lb {
		return maxGeoPoints
	}
	ra, okA := RegionOf(la)
	rb, okB := RegionOf(lb)
	switch {
	case okA && okB && ra == rb:
		return 15
	case okA && okB:
		return 5
	}
	return 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
