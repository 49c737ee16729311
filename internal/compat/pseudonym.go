package compat

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

var pseudonymColors = []string{
	"Blue", "Green", "Coral", "Amber", "Silver", "Golden", "Violet", "Crimson",
	"Teal", "Indigo", "Jade", "Ivory", "Scarlet", "Azure", "Olive", "Rose",
}

var pseudonymNouns = []string{
	"Ocean", "River", "Meadow", "Willow", "Sparrow", "Maple", "Harbor", "Lantern",
	"Breeze", "Pebble", "Comet", "Orchid", "Canyon", "Falcon", "Lotus", "Ember",
}

// Pseudonym returns the label viewerID sees for targetID, e.g. "BlueOcean47".
// It is a pure function of both ids so a viewer sees the same label on every
// refresh while different viewers see different labels.
func Pseudonym(viewerID, targetID string) string {
	h := xxhash.Sum64String(viewerID + ":" + targetID)

	nc, nn := uint64(len(pseudonymColors)), uint64(len(pseudonymNouns))
	color := pseudonymColors[h%nc]
	noun := pseudonymNouns[(h/nc)%nn]
	num := (h/(nc*nn))%90 + 10

	return fmt.Sprintf("%s%s%d", color, noun, num)
}

// SessionPseudonym scopes the pseudonym to one session, so the same pair gets
// fresh labels in each new conversation.
func SessionPseudonym(sessionID, viewerID, targetID string) string {
	return Pseudonym(sessionID+"/"+viewerID, targetID)
}
