package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cosmconsole/pkg/cosmtypes"
)

func entry(author, text string, streaming bool) cosmtypes.Entry {
	return cosmtypes.Entry{
		ID:        author + "-" + text,
		Author:    author,
		Text:      text,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Streaming: streaming,
	}
}

func TestGroupBlocksSingleTurn(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testUser, "hi", false),
		entry("agentX", "researching", false),
		entry(testPrimary, "hello", false),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 1)

	b := blocks[0]
	require.NotNil(t, b.User)
	assert.Equal(t, "hi", b.User.Text)
	require.NotNil(t, b.Coordinator)
	assert.Equal(t, "hello", b.Coordinator.Text)
	require.Len(t, b.AgentActivity["agentX"], 1)
	assert.Equal(t, []string{"agentX"}, b.AgentOrder)
	assert.False(t, b.Pending())
}

func TestGroupBlocksNewUserEntryOpensNewBlock(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testUser, "hi", false),
		entry(testPrimary, "hello", false),
		entry(testUser, "bye", false),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 2)
	assert.Equal(t, "hi", blocks[0].User.Text)
	assert.Equal(t, "bye", blocks[1].User.Text)
	assert.True(t, blocks[1].Pending())
	assert.Nil(t, blocks[1].Coordinator)
}

func TestGroupBlocksLastAgentMessageFallback(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testUser, "hi", false),
		entry("market_explorer", "scanning forums", false),
		entry("market_analyzer", "scoring gaps", false),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.True(t, b.Pending())
	require.NotNil(t, b.LastAgentMessage)
	assert.Equal(t, "scoring gaps", b.LastAgentMessage.Text)
	assert.Equal(t, []string{"market_explorer", "market_analyzer"}, b.AgentOrder)
}

func TestGroupBlocksAgentInitiatedLeadingBlock(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testPrimary, "welcome back", false),
		entry(testUser, "hi", false),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 2)
	assert.Nil(t, blocks[0].User)
	require.NotNil(t, blocks[0].Coordinator)
	assert.Equal(t, "welcome back", blocks[0].Coordinator.Text)
	assert.Equal(t, "hi", blocks[1].User.Text)
}

func TestGroupBlocksMultipleEntriesPerAgent(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testUser, "go", false),
		entry("agentX", "step one", false),
		entry("agentX", "step two", false),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].AgentActivity["agentX"], 2)
	assert.Equal(t, []string{"agentX"}, blocks[0].AgentOrder)
}

func TestGroupBlocksStreamingPrimaryKeepsBlockPending(t *testing.T) {
	entries := []cosmtypes.Entry{
		entry(testUser, "find a gap", false),
		entry(testPrimary, "Looking into", true),
	}

	blocks := GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Nil(t, b.Coordinator)
	assert.True(t, b.Pending())
	require.NotNil(t, b.LastAgentMessage)
	assert.Equal(t, "Looking into", b.LastAgentMessage.Text)

	// The finalized reply then closes the block.
	entries = append(entries[:1], entry(testPrimary, "Looking into this.", false))
	blocks = GroupBlocks(entries, testUser, testPrimary)
	require.Len(t, blocks, 1)
	require.NotNil(t, blocks[0].Coordinator)
	assert.False(t, blocks[0].Pending())
}

func TestGroupBlocksEmpty(t *testing.T) {
	assert.Empty(t, GroupBlocks(nil, testUser, testPrimary))
}
