package world

import (
	"math/rand"
	"testing"

	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGrid(t *testing.T, sx, sy, sz int, seed int64) *Grid {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	g := NewGrid(sx, sy, sz)
	for x := 0; x < sx; x++ {
		for y := 0; y < sy; y++ {
			for z := 0; z < sz; z++ {
				g.Set(x, y, z, block.BlockID(rng.Intn(block.Count())))
			}
		}
	}
	g.SetSpawn(mgl64.Vec3{1, 2, 3})
	return g
}

func TestGrid_FlatScenario(t *testing.T) {
	g := NewGrid(16, 16, 16)
	FillFlat(g, 8)

	assert.Equal(t, mgl64.Vec3{8.5, 8.5, 8}, g.Spawn())
	assert.Equal(t, block.DirtBlockID, g.Get(3, 4, 7))
	assert.Equal(t, block.AirBlockID, g.Get(3, 4, 8))
	assert.Equal(t, block.AirBlockID, g.Get(20, 0, 0), "вне сетки должен быть воздух")

	encoded := g.Encode()
	require.Len(t, encoded, 16*16*16)

	decoded := NewGrid(16, 16, 16)
	require.NoError(t, decoded.Decode(16, 16, 16, encoded))
	decoded.SetSpawn(g.Spawn())
	assert.True(t, g.Equal(decoded), "сетка после decode(encode) должна совпадать")
}

func TestGrid_RoundTripRandom(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		g := randomGrid(t, 5, 7, 3, seed)
		d, err := FromEncoded(5, 7, 3, g.Encode())
		require.NoError(t, err)
		d.SetSpawn(g.Spawn())
		assert.True(t, g.Equal(d), "seed %d", seed)
		assert.Equal(t, g.Encode(), d.Encode())
	}
}

func TestGrid_EncodeOrder(t *testing.T) {
	g := NewGrid(2, 2, 2)
	g.Set(0, 0, 1, block.DirtBlockID)
	g.Set(1, 0, 0, block.WoodBlockID)

	// x — внешняя ось, z — внутренняя
	assert.Equal(t, "acaadaaa", g.Encode())
}

func TestGrid_OutOfRangeIsAir(t *testing.T) {
	g := randomGrid(t, 4, 4, 4, 42)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			g.Set(x, y, 0, block.BedrockBlockID)
		}
	}

	cases := [][3]int{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}, {4, 0, 0}, {0, 4, 0}, {0, 0, 4}, {100, 100, 100}}
	for _, c := range cases {
		assert.Equal(t, block.AirBlockID, g.Get(c[0], c[1], c[2]), "координаты %v", c)
		assert.False(t, g.InBounds(c[0], c[1], c[2]))
	}
}

func TestGrid_SetAlwaysNotifies(t *testing.T) {
	g := NewGrid(4, 4, 4)
	var calls [][3]int
	g.SetChangeListener(ChangeListenerFunc(func(x, y, z int) {
		calls = append(calls, [3]int{x, y, z})
	}))

	g.Set(1, 2, 3, block.DirtBlockID)
	g.Set(1, 2, 3, block.DirtBlockID) // то же значение

	assert.Equal(t, [][3]int{{1, 2, 3}, {1, 2, 3}}, calls)
}

func TestGrid_DecodeRejectsBadInput(t *testing.T) {
	g := NewGrid(2, 2, 2)
	g.Set(0, 0, 0, block.DirtBlockID)
	before := g.Encode()

	assert.ErrorIs(t, g.Decode(2, 2, 2, "aaa"), ErrBadEncoding)
	assert.ErrorIs(t, g.Decode(2, 2, 2, "aaaaaaaz"), ErrBadEncoding)
	assert.ErrorIs(t, g.Decode(2, 2, 2, "aaaaaaa!"), ErrBadEncoding)
	assert.ErrorIs(t, g.Decode(3, 2, 2, "aaaaaaaa"), ErrBadEncoding)
	assert.Equal(t, before, g.Encode(), "при ошибке сетка не меняется")
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := NewGrid(3, 3, 3)
	FillFlat(g, 1)
	c := g.Clone()

	g.Set(0, 0, 2, block.GoldBlockID)
	assert.Equal(t, block.AirBlockID, c.Get(0, 0, 2))
	assert.Equal(t, g.Spawn(), c.Spawn())
}

func TestStepGravity(t *testing.T) {
	g := NewGrid(1, 1, 6)
	g.Set(0, 0, 0, block.DirtBlockID)
	g.Set(0, 0, 3, block.SandBlockID)
	g.Set(0, 0, 4, block.GravelBlockID)
	g.Set(0, 0, 5, block.DirtBlockID) // без гравитации

	changes := StepGravity(g)
	require.Len(t, changes, 4)
	assert.Equal(t, BlockChange{X: 0, Y: 0, Z: 2, ID: block.SandBlockID}, changes[0])
	assert.Equal(t, block.SandBlockID, g.Get(0, 0, 2))
	assert.Equal(t, block.GravelBlockID, g.Get(0, 0, 3))
	assert.Equal(t, block.AirBlockID, g.Get(0, 0, 4))
	assert.Equal(t, block.DirtBlockID, g.Get(0, 0, 5))

	StepGravity(g)
	assert.Equal(t, block.SandBlockID, g.Get(0, 0, 1))
	assert.Empty(t, StepGravity(g), "блок на опоре не двигается")
}

func TestWorldGenerator_Deterministic(t *testing.T) {
	a := NewGrid(16, 16, 32)
	b := NewGrid(16, 16, 32)
	NewWorldGenerator("acid-info", 16, 0.1).Generate(a)
	NewWorldGenerator("acid-info", 16, 0.1).Generate(b)

	assert.Equal(t, a.Encode(), b.Encode())
	assert.Equal(t, block.BedrockBlockID, a.Get(0, 0, 0))

	spawn := a.Spawn()
	sx, sy, sz := int(spawn.X()), int(spawn.Y()), int(spawn.Z())
	assert.Equal(t, block.AirBlockID, a.Get(sx, sy, sz), "точка появления над поверхностью")
	assert.True(t, a.Get(sx, sy, sz-1).IsSolid(), "под точкой появления твёрдый блок")
}
