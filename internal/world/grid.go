package world

import (
	"github.com/annel0/voxel-server/internal/world/block"
	"github.com/go-gl/mathgl/mgl64"
)

// ChangeListener получает уведомление о каждой записи блока.
// Сетка держит ровно одного слушателя; слушатель регистрирует себя сам.
type ChangeListener interface {
	BlockChanged(x, y, z int)
}

// ChangeListenerFunc позволяет использовать функцию как ChangeListener
type ChangeListenerFunc func(x, y, z int)

// BlockChanged вызывает f(x, y, z)
func (f ChangeListenerFunc) BlockChanged(x, y, z int) { f(x, y, z) }

// BlockChange описывает одну изменённую ячейку
type BlockChange struct {
	X, Y, Z int
	ID      block.BlockID
}

// Grid — плотный трёхмерный массив материалов фиксированного размера.
// Сетка не потокобезопасна: владелец (сервер или клиентское зеркало)
// обязан сериализовать доступ сам.
type Grid struct {
	sx, sy, sz int
	cells      []block.BlockID
	spawn      mgl64.Vec3
	listener   ChangeListener
}

// NewGrid создаёт сетку sx×sy×sz, заполненную воздухом
func NewGrid(sx, sy, sz int) *Grid {
	if sx < 0 || sy < 0 || sz < 0 {
		sx, sy, sz = 0, 0, 0
	}
	return &Grid{
		sx:    sx,
		sy:    sy,
		sz:    sz,
		cells: make([]block.BlockID, sx*sy*sz),
	}
}

// Size возвращает размеры сетки
func (g *Grid) Size() (sx, sy, sz int) {
	return g.sx, g.sy, g.sz
}

// Volume — число ячеек
func (g *Grid) Volume() int {
	return len(g.cells)
}

// InBounds проверяет, что координаты лежат внутри сетки
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.sx && y < g.sy && z < g.sz
}

// index: x — внешняя ось, z — внутренняя (тот же порядок, что у Encode)
func (g *Grid) index(x, y, z int) int {
	return (x*g.sy+y)*g.sz + z
}

// Get возвращает материал ячейки. Вне сетки мир считается воздухом.
func (g *Grid) Get(x, y, z int) block.BlockID {
	if !g.InBounds(x, y, z) {
		return block.AirBlockID
	}
	return g.cells[g.index(x, y, z)]
}

// Set записывает материал и всегда уведомляет слушателя, даже если значение не изменилось.
// Проверка границ — ответственность вызывающего.
func (g *Grid) Set(x, y, z int, id block.BlockID) {
	g.cells[g.index(x, y, z)] = id
	if g.listener != nil {
		g.listener.BlockChanged(x, y, z)
	}
}

// SetChangeListener регистрирует единственного слушателя изменений (nil — отписка)
func (g *Grid) SetChangeListener(l ChangeListener) {
	g.listener = l
}

// Spawn возвращает точку появления игроков
func (g *Grid) Spawn() mgl64.Vec3 {
	return g.spawn
}

// SetSpawn задаёт точку появления игроков
func (g *Grid) SetSpawn(p mgl64.Vec3) {
	g.spawn = p
}

// Clone делает глубокую копию без слушателя. Используется для снимков под единственным писателем.
func (g *Grid) Clone() *Grid {
	c := &Grid{
		sx:    g.sx,
		sy:    g.sy,
		sz:    g.sz,
		cells: make([]block.BlockID, len(g.cells)),
		spawn: g.spawn,
	}
	copy(c.cells, g.cells)
	return c
}

// Equal сравнивает размеры, точку появления и содержимое
func (g *Grid) Equal(o *Grid) bool {
	if g.sx != o.sx || g.sy != o.sy || g.sz != o.sz || g.spawn != o.spawn {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// Count считает ячейки с указанным материалом
func (g *Grid) Count(id block.BlockID) int {
	n := 0
	for _, c := range g.cells {
		if c == id {
			n++
		}
	}
	return n
}
