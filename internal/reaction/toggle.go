// Package reaction manages the user's like/dislike state on reviews:
// an optimistic local mutation applied immediately, confirmed by a
// non-blocking background submission to the backend.
package reaction

import "github.com/ARTFROST1/AdygGIS-sub000/internal/models"

// Toggle computes the next reaction state and counters for a tap on
// desired. It is a pure function of the current state:
//
//   - tapping the active reaction turns it off,
//   - tapping from no reaction turns the tapped one on,
//   - tapping the opposite reaction switches sides.
//
// Counters floor at zero so a replayed or out-of-order local toggle can
// never drive a displayed count negative.
func Toggle(current, desired models.ReactionKind, likes, dislikes int) (next models.ReactionKind, nextLikes, nextDislikes int) {
	nextLikes, nextDislikes = likes, dislikes

	switch {
	case current == desired:
		next = models.ReactionNone
		switch desired {
		case models.ReactionLike:
			nextLikes = floorDec(nextLikes)
		case models.ReactionDislike:
			nextDislikes = floorDec(nextDislikes)
		}
	case current == models.ReactionNone:
		next = desired
		switch desired {
		case models.ReactionLike:
			nextLikes++
		case models.ReactionDislike:
			nextDislikes++
		}
	default:
		next = desired
		switch current {
		case models.ReactionLike:
			nextLikes = floorDec(nextLikes)
		case models.ReactionDislike:
			nextDislikes = floorDec(nextDislikes)
		}
		switch desired {
		case models.ReactionLike:
			nextLikes++
		case models.ReactionDislike:
			nextDislikes++
		}
	}
	return next, nextLikes, nextDislikes
}

func floorDec(n int) int {
	if n <= 0 {
		return 0
	}
	return n - 1
}
