package block

import (
	"fmt"
	"strings"
)

// BlockID представляет идентификатор материала. Значение стабильно между
// сессиями и используется как есть в сетевом и файловом формате мира.
type BlockID uint8

// Константы ID материалов
const (
	AirBlockID BlockID = iota // 0 - пустота
	BedrockBlockID
	DirtBlockID
	WoodBlockID
	TNTBlockID
	BookcaseBlockID
	LavaBlockID
	PlankBlockID
	CobblestoneBlockID
	ConcreteBlockID
	BrickBlockID
	SandBlockID
	GravelBlockID
	IronBlockID
	GoldBlockID
	DiamondBlockID
	ObsidianBlockID
	GlassBlockID
	SpongeBlockID

	numBlockIDs
)

// MaxMaterials — ёмкость алфавита кодировки мира ('a'..'z').
const MaxMaterials = 26

var registry [numBlockIDs]Material

// register кладёт материал в таблицу. Повторная регистрация id — ошибка программиста.
func register(m Material) {
	if registry[m.ID].Name != "" {
		panic(fmt.Sprintf("block: material %d registered twice", m.ID))
	}
	registry[m.ID] = m
}

func init() {
	if int(numBlockIDs) > MaxMaterials {
		panic(fmt.Sprintf("block: %d materials do not fit the %d-letter world encoding", numBlockIDs, MaxMaterials))
	}

	register(Material{ID: AirBlockID, Name: "air", Transparent: true})
	register(Material{ID: BedrockBlockID, Name: "bedrock"})
	register(solid(DirtBlockID, "dirt"))
	register(solid(WoodBlockID, "wood"))
	register(solid(TNTBlockID, "tnt"))
	register(solid(BookcaseBlockID, "bookcase"))
	register(Material{ID: LavaBlockID, Name: "lava", Transparent: true, SelfLit: true, Gravity: true, Fluid: true})
	register(solid(PlankBlockID, "plank"))
	register(solid(CobblestoneBlockID, "cobblestone"))
	register(solid(ConcreteBlockID, "concrete"))
	register(solid(BrickBlockID, "brick"))
	register(Material{ID: SandBlockID, Name: "sand", Spawnable: true, Gravity: true})
	register(Material{ID: GravelBlockID, Name: "gravel", Spawnable: true, Gravity: true})
	register(solid(IronBlockID, "iron"))
	register(solid(GoldBlockID, "gold"))
	register(solid(DiamondBlockID, "diamond"))
	register(solid(ObsidianBlockID, "obsidian"))
	register(Material{ID: GlassBlockID, Name: "glass", Spawnable: true, Transparent: true})
	register(solid(SpongeBlockID, "sponge"))

	for id := range registry {
		if registry[id].Name == "" {
			panic(fmt.Sprintf("block: material %d has no entry", id))
		}
	}
}

// Get возвращает материал по ID
func Get(id BlockID) (Material, bool) {
	if !IsValidBlockID(id) {
		return Material{}, false
	}
	return registry[id], true
}

// MustGet возвращает материал или AIR для неизвестного ID.
func MustGet(id BlockID) Material {
	if m, ok := Get(id); ok {
		return m
	}
	return registry[AirBlockID]
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	return id < numBlockIDs
}

// FromInt переводит число из сетевого сообщения в BlockID.
func FromInt(v int) (BlockID, bool) {
	if v < 0 || v >= int(numBlockIDs) {
		return 0, false
	}
	return BlockID(v), true
}

// Count возвращает число материалов в каталоге
func Count() int {
	return int(numBlockIDs)
}

// All возвращает копию каталога, упорядоченную по ID
func All() []Material {
	out := make([]Material, len(registry))
	copy(out, registry[:])
	return out
}

// ByName ищет материал по имени без учёта регистра
func ByName(name string) (Material, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range registry {
		if m.Name == name {
			return m, true
		}
	}
	return Material{}, false
}
