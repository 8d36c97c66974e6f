package dto

// BulkStudent is one student in a JSON bulk import.
type BulkStudent struct {
	FullName           string `json:"full_name"`
	SymbolNumber       string `json:"symbol_number"`
	RegistrationNumber string `json:"registration_number"`
	College            string `json:"college,omitempty"`
}

// BulkImportRequest enrolls students from a JSON body instead of an uploaded file.
type BulkImportRequest struct {
	BatchID   string        `json:"batch_id" validate:"required"`
	ProgramID string        `json:"program_id" validate:"required"`
	Students  []BulkStudent `json:"students" validate:"required,min=1,max=10000"`
}
