// Package cells maps world coordinates to the flat integer index carried on
// the wire. Every peer must build the same Indices for a given world.
package cells

type Vec3i struct {
	X int
	Y int
	Z int
}

// Indices is a world's fixed coordinate-to-index mapping. Y is ignored: a
// cell is a column on the X/Z plane, row-major in Z.
type Indices struct {
	SizeX int
	SizeZ int
}

func NewIndices(sizeX, sizeZ int) Indices {
	return Indices{SizeX: sizeX, SizeZ: sizeZ}
}

func (ix Indices) NumCells() int {
	if ix.SizeX <= 0 || ix.SizeZ <= 0 {
		return 0
	}
	return ix.SizeX * ix.SizeZ
}

func (ix Indices) InBounds(v Vec3i) bool {
	return v.X >= 0 && v.Z >= 0 && v.X < ix.SizeX && v.Z < ix.SizeZ
}

func (ix Indices) CellToIndex(v Vec3i) (int, bool) {
	if !ix.InBounds(v) {
		return 0, false
	}
	return v.Z*ix.SizeX + v.X, true
}

func (ix Indices) IndexToCell(i int) (Vec3i, bool) {
	if i < 0 || i >= ix.NumCells() {
		return Vec3i{}, false
	}
	return Vec3i{X: i % ix.SizeX, Z: i / ix.SizeX}, true
}
