package voxel

// Delta описывает одно изменение вокселя. SequenceID монотонно растёт
// в пределах мира и используется для отбрасывания устаревших результатов.
type Delta struct {
	Coords      [3]int    `json:"coords"`
	OldVoxel    uint32    `json:"oldVoxel"`
	NewVoxel    uint32    `json:"newVoxel"`
	OldRotation *Rotation `json:"oldRotation,omitempty"`
	NewRotation *Rotation `json:"newRotation,omitempty"`
	OldStage    *uint32   `json:"oldStage,omitempty"`
	NewStage    *uint32   `json:"newStage,omitempty"`
	Timestamp   int64     `json:"timestamp"`
	SequenceID  uint64    `json:"sequenceId"`
}

// Apply применяет изменение к упакованной ячейке. Поля пишутся только
// если они действительно меняются.
func (d Delta) Apply(raw uint32) uint32 {
	next := raw
	if d.OldVoxel != d.NewVoxel {
		next = InsertID(next, d.NewVoxel)
	}
	if d.NewRotation != nil {
		next = InsertRotation(next, *d.NewRotation)
	}
	if d.NewStage != nil {
		next = InsertStage(next, *d.NewStage)
	}
	return next
}

// IsNoop сообщает, что изменение ничего не пишет.
func (d Delta) IsNoop() bool {
	return d.OldVoxel == d.NewVoxel && d.NewRotation == nil && d.NewStage == nil
}
