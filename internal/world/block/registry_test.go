package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_IsTotal(t *testing.T) {
	require.Equal(t, 19, Count())
	for i := 0; i < Count(); i++ {
		m, ok := Get(BlockID(i))
		require.True(t, ok, "материал %d должен существовать", i)
		assert.Equal(t, BlockID(i), m.ID)
		assert.NotEmpty(t, m.Name)
	}

	_, ok := Get(BlockID(Count()))
	assert.False(t, ok, "ID за пределами каталога недопустим")
	assert.LessOrEqual(t, Count(), MaxMaterials)
}

func TestCatalog_Air(t *testing.T) {
	air := MustGet(AirBlockID)
	assert.False(t, air.Spawnable)
	assert.True(t, air.Transparent)
	assert.False(t, air.Gravity)
	assert.False(t, air.Fluid)
	assert.True(t, AirBlockID.IsAir())
	assert.False(t, AirBlockID.IsSolid())
}

func TestCatalog_Properties(t *testing.T) {
	lava := MustGet(LavaBlockID)
	assert.False(t, lava.Spawnable)
	assert.True(t, lava.Transparent)
	assert.True(t, lava.SelfLit)
	assert.True(t, lava.Gravity)
	assert.True(t, lava.Fluid)

	assert.False(t, MustGet(BedrockBlockID).Spawnable)
	assert.True(t, MustGet(SandBlockID).Gravity)
	assert.True(t, MustGet(GravelBlockID).Gravity)
	assert.False(t, MustGet(DirtBlockID).Gravity)
	assert.True(t, MustGet(GlassBlockID).Transparent)
	assert.True(t, MustGet(SpongeBlockID).Spawnable)
}

func TestCanPlace(t *testing.T) {
	assert.True(t, AirBlockID.CanPlace(), "удаление блока разрешено")
	assert.True(t, DirtBlockID.CanPlace())
	assert.False(t, BedrockBlockID.CanPlace())
	assert.False(t, LavaBlockID.CanPlace())
	assert.False(t, BlockID(200).CanPlace())
}

func TestFromIntAndByName(t *testing.T) {
	id, ok := FromInt(2)
	assert.True(t, ok)
	assert.Equal(t, DirtBlockID, id)

	_, ok = FromInt(-1)
	assert.False(t, ok)
	_, ok = FromInt(19)
	assert.False(t, ok)

	m, ok := ByName("  Obsidian ")
	assert.True(t, ok)
	assert.Equal(t, ObsidianBlockID, m.ID)
	assert.Equal(t, "diamond", DiamondBlockID.String())
}
