// Package access decides which boards a class of users may see. Decisions
// are described by a Grant resolved once per (group set, admin) pair and
// evaluated lazily per board, so board identities never enter the cache key.
package access

import (
	"palaver/internal/forest"
)

// Grant is the cached visibility decision for one group set. Moderated is
// attached per call by Resolve, never cached: two users sharing a group set
// can moderate different boards.
type Grant struct {
	Groups      []int64 `json:"groups"`
	IsAdmin     bool    `json:"isAdmin"`
	DenyEnabled bool    `json:"denyEnabled"`
	Version     uint64  `json:"version"`

	Moderated map[int64]struct{} `json:"-"`
}

// CanSee reports whether the grant allows viewing the board. Admins see
// everything; otherwise the user needs a group in the board's allowed set,
// and when deny semantics are enabled a hit in the denied set revokes
// visibility unless the user moderates that board. The zero Grant sees
// nothing, so an unresolved ambiguity fails closed.
func (g Grant) CanSee(b *forest.Board) bool {
	if g.IsAdmin {
		return true
	}
	if !intersects(g.Groups, b.AllowedGroups) {
		return false
	}
	if g.DenyEnabled && intersects(g.Groups, b.DeniedGroups) {
		_, moderates := g.Moderated[b.ID]
		return moderates
	}
	return true
}

// CanSeeWanted is CanSee further restricted by the user's ignored boards,
// for feeds that show only boards the user actually wants.
func (g Grant) CanSeeWanted(b *forest.Board, ignored map[int64]struct{}) bool {
	if _, skip := ignored[b.ID]; skip {
		return false
	}
	return g.CanSee(b)
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
