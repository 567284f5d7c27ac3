package lifecycle

import (
	"sort"

	"github.com/onnwee/channel-tender/config"
)

// Plan assigns every channel that has a target category its index inside that category.
//
// Members of a category are ordered by name (byte-wise). Identical names keep their current
// relative order (current position, then id) so repeated passes never swap them. The sticky
// channel, when it targets a category, takes index 0 and pushes everyone else down by one.
func Plan(channels []Channel, targets map[uint64]uint64, p config.Partition) map[uint64]int {
	ordered := append([]Channel(nil), channels...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].ID < ordered[j].ID
	})

	positions := make(map[uint64]int, len(targets))
	for _, category := range p.Categories() {
		var members []Channel
		stickyHere := false
		for _, ch := range ordered {
			target, ok := targets[ch.ID]
			if !ok || target != category {
				continue
			}
			if p.Sticky != 0 && ch.ID == p.Sticky {
				stickyHere = true
				continue
			}
			members = append(members, ch)
		}
		sort.SliceStable(members, func(i, j int) bool { return members[i].Name < members[j].Name })

		offset := 0
		if stickyHere {
			positions[p.Sticky] = 0
			offset = 1
		}
		for i, ch := range members {
			positions[ch.ID] = i + offset
		}
	}
	return positions
}
