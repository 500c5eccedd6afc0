package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoomRef(t *testing.T) {
	t.Run("empty id selects the main room", func(t *testing.T) {
		assert.True(t, ParseRoomRef("").IsMain())
	})

	t.Run("main literal selects the main room", func(t *testing.T) {
		assert.True(t, ParseRoomRef("main").IsMain())
	})

	t.Run("other ids select a private room", func(t *testing.T) {
		ref := ParseRoomRef("abc123")
		assert.False(t, ref.IsMain())
		assert.False(t, ref.IsNone())
		assert.Equal(t, "abc123", ref.Id())
	})
}

func TestRoomRefZeroValue(t *testing.T) {
	var ref RoomRef
	assert.True(t, ref.IsNone())
	assert.False(t, ref.IsMain())
	assert.Equal(t, "none", ref.String())
}

func TestPresenceTableEnterRoom(t *testing.T) {
	p := newPresenceTable()

	entry := p.enterRoom(1, MainRoom)
	assert.Equal(t, MainRoom, entry.current)
	assert.True(t, entry.previous.IsNone())

	entry = p.enterRoom(1, PrivateRoom("r1"))
	assert.Equal(t, PrivateRoom("r1"), entry.current)
	assert.Equal(t, MainRoom, entry.previous)

	entry = p.enterRoom(1, MainRoom)
	assert.Equal(t, MainRoom, entry.current)
	assert.Equal(t, PrivateRoom("r1"), entry.previous)
}

func TestPresenceTableOccupantsOf(t *testing.T) {
	p := newPresenceTable()
	p.enterRoom(1, MainRoom)
	p.enterRoom(2, PrivateRoom("r1"))
	p.enterRoom(3, MainRoom)
	p.enterRoom(3, PrivateRoom("r1"))

	assert.ElementsMatch(t, []int{1}, p.occupantsOf(MainRoom))
	assert.ElementsMatch(t, []int{2, 3}, p.occupantsOf(PrivateRoom("r1")))
	assert.Empty(t, p.occupantsOf(PrivateRoom("r2")))
}

func TestPresenceTableSurvivesRemove(t *testing.T) {
	p := newPresenceTable()
	p.enterRoom(1, MainRoom)

	p.remove(1)

	_, ok := p.snapshotFor(1)
	assert.False(t, ok)
	assert.Empty(t, p.occupantsOf(MainRoom))
}
