// Package assessment implements the adaptive loop around the IRT core:
// picking the next item, deciding when to stop, and summarizing a finished
// session into a diagnostic report.
package assessment

import (
	"math"

	"github.com/ascent-prep/ascent/internal/irt"
	"github.com/ascent-prep/ascent/internal/model"
)

// SelectorConfig bounds topic exposure during a session.
type SelectorConfig struct {
	// MaxPerTopic caps how many items one topic may contribute; 0 disables
	// the cap. When every remaining candidate is capped, selection falls
	// back to the nearest-difficulty item instead of returning nothing.
	MaxPerTopic int
}

// Params converts an item's calibration into the IRT parameter triple.
func Params(it model.Item) irt.ItemParams {
	return irt.ItemParams{A: it.Discrimination, B: it.Difficulty, C: it.Guessing}
}

// SelectNext picks the un-administered pool item with maximum Fisher
// information at theta, subject to the per-topic cap. Ties break toward the
// lower item id so selection is reproducible. The boolean is false only when
// every pool item has already been administered.
func SelectNext(theta float64, pool, administered []model.Item, cfg SelectorConfig) (model.Item, bool) {
	asked := make(map[string]bool, len(administered))
	topicCount := make(map[string]int, len(administered))
	for _, it := range administered {
		asked[it.ID] = true
		topicCount[it.Topic]++
	}

	var best, fallback *model.Item
	var bestInfo, fallbackDist float64

	for i := range pool {
		it := &pool[i]
		if asked[it.ID] {
			continue
		}

		dist := math.Abs(it.Difficulty - theta)
		if fallback == nil || dist < fallbackDist || (dist == fallbackDist && it.ID < fallback.ID) {
			fallback, fallbackDist = it, dist
		}

		if cfg.MaxPerTopic > 0 && topicCount[it.Topic] >= cfg.MaxPerTopic {
			continue
		}
		info := irt.Information(theta, Params(*it))
		if best == nil || info > bestInfo || (info == bestInfo && it.ID < best.ID) {
			best, bestInfo = it, info
		}
	}

	if best != nil {
		return *best, true
	}
	if fallback != nil {
		return *fallback, true
	}
	return model.Item{}, false
}
