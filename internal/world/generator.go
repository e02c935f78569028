package world

import (
	"math"

	"github.com/annel0/voxel-server/internal/util"
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultSeed — текстовый сид мира по умолчанию
const DefaultSeed = "acid-info"

// FillFlat делает плоский мир: ниже groundHeight — земля, выше — воздух.
// Точка появления — центр мира на уровне земли.
func FillFlat(g *Grid, groundHeight int) {
	for x := 0; x < g.sx; x++ {
		for y := 0; y < g.sy; y++ {
			for z := 0; z < g.sz; z++ {
				id := block.AirBlockID
				if z < groundHeight {
					id = block.DirtBlockID
				}
				g.cells[g.index(x, y, z)] = id
			}
		}
	}
	g.spawn = mgl64.Vec3{float64(g.sx)/2 + 0.5, float64(g.sy)/2 + 0.5, float64(groundHeight)}
}

// WorldGenerator генерирует холмистый ландшафт по шуму Перлина
type WorldGenerator struct {
	Seed         string  // Текстовый сид
	GroundHeight int     // Средняя высота поверхности
	Magnitude    float64 // Амплитуда холмов в долях высоты мира
	NoiseScale   float64 // Масштаб шума (сглаженность ландшафта)

	noise *util.Noise
}

// NewWorldGenerator создаёт новый генератор мира
func NewWorldGenerator(seed string, groundHeight int, magnitude float64) *WorldGenerator {
	if seed == "" {
		seed = DefaultSeed
	}
	if magnitude <= 0 {
		magnitude = 0.1
	}
	return &WorldGenerator{
		Seed:         seed,
		GroundHeight: groundHeight,
		Magnitude:    magnitude,
		NoiseScale:   0.05,
		noise:        util.NewNoise(util.SeedFromString(seed)),
	}
}

// HeightAt возвращает высоту поверхности для колонки (x, y) в мире высотой sz
func (wg *WorldGenerator) HeightAt(x, y, sz int) int {
	n := wg.noise.Noise2D(float64(x)*wg.NoiseScale, float64(y)*wg.NoiseScale)
	h := wg.GroundHeight + int(math.Round((n-0.5)*2*wg.Magnitude*float64(sz)))
	if h < 1 {
		h = 1
	}
	if h > sz-1 {
		h = sz - 1
	}
	return h
}

// Generate заполняет сетку ландшафтом и ставит точку появления над центральной колонкой
func (wg *WorldGenerator) Generate(g *Grid) {
	for x := 0; x < g.sx; x++ {
		for y := 0; y < g.sy; y++ {
			h := wg.HeightAt(x, y, g.sz)
			for z := 0; z < g.sz; z++ {
				g.cells[g.index(x, y, z)] = wg.materialAt(z, h)
			}
		}
	}

	cx, cy := g.sx/2, g.sy/2
	g.spawn = mgl64.Vec3{float64(cx) + 0.5, float64(cy) + 0.5, float64(wg.HeightAt(cx, cy, g.sz))}
}

func (wg *WorldGenerator) materialAt(z, h int) block.BlockID {
	switch {
	case z == 0:
		return block.BedrockBlockID
	case z >= h:
		return block.AirBlockID
	case z < h-3:
		return block.CobblestoneBlockID
	case h < wg.GroundHeight && z == h-1:
		// Низины засыпаны песком
		return block.SandBlockID
	default:
		return block.DirtBlockID
	}
}
