package world

import "github.com/annel0/voxel-server/internal/world/block"

// StepGravity выполняет один шаг гравитации: каждый сыпучий блок с воздухом
// под собой опускается на одну клетку. Обход x, y, z по возрастанию, поэтому
// столб сыпучих блоков опускается на одну клетку целиком.
// Возвращает изменённые ячейки в порядке записи.
func StepGravity(g *Grid) []BlockChange {
	var changes []BlockChange

	for x := 0; x < g.sx; x++ {
		for y := 0; y < g.sy; y++ {
			for z := 1; z < g.sz; z++ {
				id := g.cells[g.index(x, y, z)]
				if !block.MustGet(id).Gravity {
					continue
				}
				if g.cells[g.index(x, y, z-1)] != block.AirBlockID {
					continue
				}

				g.Set(x, y, z-1, id)
				g.Set(x, y, z, block.AirBlockID)
				changes = append(changes,
					BlockChange{X: x, Y: y, Z: z - 1, ID: id},
					BlockChange{X: x, Y: y, Z: z, ID: block.AirBlockID},
				)
			}
		}
	}

	return changes
}
