package transcript

import "cosmconsole/pkg/cosmtypes"

// GroupBlocks partitions a transcript into conversation blocks with a single
// left-to-right scan. A new block opens on each user entry; entries from the
// primary responder populate Coordinator; every other author accumulates into
// AgentActivity, with the most recent such entry tracked as LastAgentMessage
// for display while the primary responder has not yet replied.
//
// Leading agent entries before any user entry form an agent-initiated block
// with a nil User.
func GroupBlocks(entries []cosmtypes.Entry, userAuthor, primaryAuthor string) []cosmtypes.Block {
	var blocks []cosmtypes.Block
	var current *cosmtypes.Block

	open := func(user *cosmtypes.Entry) {
		blocks = append(blocks, cosmtypes.Block{
			User:          user,
			AgentActivity: make(map[string][]cosmtypes.Entry),
		})
		current = &blocks[len(blocks)-1]
	}

	for i := range entries {
		entry := entries[i]

		if entry.Author == userAuthor {
			open(&entry)
			continue
		}

		if current == nil {
			open(nil)
		}

		// Only a finalized reply closes the block; an in-flight primary
		// entry keeps it pending and is shown like any other activity.
		if entry.Author == primaryAuthor && !entry.Streaming {
			current.Coordinator = &entry
			continue
		}

		if _, seen := current.AgentActivity[entry.Author]; !seen {
			current.AgentOrder = append(current.AgentOrder, entry.Author)
		}
		current.AgentActivity[entry.Author] = append(current.AgentActivity[entry.Author], entry)
		current.LastAgentMessage = &entry
	}

	return blocks
}
