package chunk

// ComputeHeightMap находит для каждой колонки самый верхний непустой воксель.
// Пустая колонка получает 0.
func (g *Grid) ComputeHeightMap(isEmpty func(id uint32) bool) {
	size := g.Options.Size
	if len(g.HeightMap) != size*size {
		g.HeightMap = make([]uint32, size*size)
	}
	if len(g.Voxels) == 0 {
		return
	}

	for lx := 0; lx < size; lx++ {
		for lz := 0; lz < size; lz++ {
			var h uint32
			for ly := g.Options.MaxHeight - 1; ly >= 0; ly-- {
				id := g.Voxels[g.Index(lx, ly, lz)] & 0xffff
				if !isEmpty(id) {
					h = uint32(ly)
					break
				}
			}
			g.HeightMap[lx*size+lz] = h
		}
	}
}

// MaxHeightAt высота колонки в мировых координатах; без карты высот верх мира
func (g *Grid) MaxHeightAt(vx, vz int) uint32 {
	lx, lz := vx-g.Min.X, vz-g.Min.Z
	size := g.Options.Size
	if len(g.HeightMap) != size*size || lx < 0 || lz < 0 || lx >= size || lz >= size {
		return uint32(g.Options.MaxHeight - 1)
	}
	return g.HeightMap[lx*size+lz]
}
