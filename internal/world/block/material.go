package block

// Material описывает неизменяемые свойства типа блока.
type Material struct {
	ID          BlockID
	Name        string
	Spawnable   bool // игрок может поставить блок
	Transparent bool // не перекрывает соседей и свет
	SelfLit     bool // светится сам, без затенения
	Gravity     bool // падает, если снизу пусто
	Fluid       bool // жидкость (неполная высота)
}

func solid(id BlockID, name string) Material {
	return Material{ID: id, Name: name, Spawnable: true}
}

// IsAir сообщает, что ID обозначает пустоту
func (id BlockID) IsAir() bool {
	return id == AirBlockID
}

// IsSolid — всё, что не воздух. Столкновения считаются только с такими блоками.
func (id BlockID) IsSolid() bool {
	return id != AirBlockID
}

// String возвращает имя материала
func (id BlockID) String() string {
	if m, ok := Get(id); ok {
		return m.Name
	}
	return "unknown"
}

// CanPlace сообщает, может ли игрок записать этот материал в мир.
// Удаление (AIR) разрешено всегда, остальное — только spawnable.
func (id BlockID) CanPlace() bool {
	m, ok := Get(id)
	if !ok {
		return false
	}
	return id == AirBlockID || m.Spawnable
}
