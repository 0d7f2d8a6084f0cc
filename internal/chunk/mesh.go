package chunk

// Face видимая грань блока. Light: ячейка света соседа, в которого смотрит грань.
type Face struct {
	X, Y, Z int32
	Dir     uint8
	Block   uint32
	Light   uint32
}
