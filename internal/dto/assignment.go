package dto

// SheetQuery selects a cycle and the rendering of its assignment sheet.
type SheetQuery struct {
	CycleQuery
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
