package dto

// CatalogQuery drives the program → semester → course lookups. Prev* fields carry the
// parameters of the caller's previous request so only changed lookups are re-run; without
// them every enabled lookup runs.
type CatalogQuery struct {
	ProgramID      string `form:"program_id"`
	SemesterID     string `form:"semester_id"`
	PrevProgramID  string `form:"prev_program_id"`
	PrevSemesterID string `form:"prev_semester_id"`
}
