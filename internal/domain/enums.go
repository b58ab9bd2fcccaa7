package domain

// FileType represents the accepted submission formats.
type FileType string

const (
	FileTypeXLSX FileType = "xlsx"
	FileTypeXLSM FileType = "xlsm"
	FileTypeCSV  FileType = "csv"
	FileTypePDF  FileType = "pdf"
	FileTypeJPG  FileType = "jpg"
	FileTypePNG  FileType = "png"
	FileTypeTIFF FileType = "tiff"
)

// AllowedFileTypes maps FileType to its MIME content type.
var AllowedFileTypes = map[FileType]string{
	FileTypeXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	FileTypeXLSM: "application/vnd.ms-excel.sheet.macroEnabled.12",
	FileTypeCSV:  "text/csv",
	FileTypePDF:  "application/pdf",
	FileTypeJPG:  "image/jpeg",
	FileTypePNG:  "image/png",
	FileTypeTIFF: "image/tiff",
}

// AllowedExtensions maps file extensions (without dot) to FileType.
var AllowedExtensions = map[string]FileType{
	"xlsx": FileTypeXLSX,
	"xlsm": FileTypeXLSM,
	"csv":  FileTypeCSV,
	"pdf":  FileTypePDF,
	"jpg":  FileTypeJPG,
	"jpeg": FileTypeJPG,
	"png":  FileTypePNG,
	"tif":  FileTypeTIFF,
	"tiff": FileTypeTIFF,
}

// IsSpreadsheet reports whether the type is read as a grid of cells.
func (f FileType) IsSpreadsheet() bool {
	return f == FileTypeXLSX || f == FileTypeXLSM || f == FileTypeCSV
}

// IsImage reports whether the type is a raster image.
func (f FileType) IsImage() bool {
	return f == FileTypeJPG || f == FileTypePNG || f == FileTypeTIFF
}

// SubmissionStatus represents the processing lifecycle of a submission.
type SubmissionStatus string

const (
	SubmissionStatusQueued     SubmissionStatus = "queued"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusProcessed  SubmissionStatus = "processed"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// DocumentKind is the outcome of document type classification.
type DocumentKind string

const (
	DocumentKindText    DocumentKind = "text"
	DocumentKindImage   DocumentKind = "image"
	DocumentKindHybrid  DocumentKind = "hybrid"
	DocumentKindUnknown DocumentKind = "unknown"
)

// ConfidenceLabel is the coarse confidence attached to a classification.
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "high"
	ConfidenceMedium ConfidenceLabel = "medium"
	ConfidenceLow    ConfidenceLabel = "low"
)

// ExtractionMethod identifies what produced a FieldExtraction.
type ExtractionMethod string

const (
	MethodDeterministic ExtractionMethod = "deterministic"
	MethodOCRHeuristic  ExtractionMethod = "ocr_heuristic"
	MethodAIFallback    ExtractionMethod = "ai_fallback"
)

// Precedence orders methods on a confidence tie. Lower wins.
func (m ExtractionMethod) Precedence() int {
	if m == MethodAIFallback {
		return 1
	}
	return 0
}

// SheetOrigin records where a grid of cells came from.
type SheetOrigin string

const (
	OriginSpreadsheet SheetOrigin = "spreadsheet"
	OriginPDFText     SheetOrigin = "pdf_text"
	OriginOCR         SheetOrigin = "ocr"
)

// Method returns the extraction method used for cells of this origin.
func (o SheetOrigin) Method() ExtractionMethod {
	if o == OriginOCR {
		return MethodOCRHeuristic
	}
	return MethodDeterministic
}

// SectionKind is the family a sheet or text section was resolved to.
type SectionKind string

const (
	SectionResource   SectionKind = "resource"
	SectionEquipment  SectionKind = "equipment"
	SectionNodes      SectionKind = "nodes"
	SectionEnvelope   SectionKind = "envelope"
	SectionUnresolved SectionKind = "unresolved"
)

// Granularity is the calendar period class of a resource value.
type Granularity string

const (
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
	GranularityAnnual  Granularity = "annual"
)

// Stage is a state of the per-submission processing machine.
type Stage string

const (
	StageClassified          Stage = "classified"
	StageDeterministicParsed Stage = "deterministic_parsed"
	StageFallbackPending     Stage = "fallback_pending"
	StageMergeReady          Stage = "merge_ready"
	StageMerged              Stage = "merged"
	StageValidated           Stage = "validated"
)

// ReadinessStatus is the gate outcome for one report section.
type ReadinessStatus string

const (
	ReadinessReady   ReadinessStatus = "ready"
	ReadinessBlocked ReadinessStatus = "blocked"
)

// FieldStatus is the per-path state surfaced in readiness reports.
type FieldStatus string

const (
	FieldStatusValid   FieldStatus = "valid"
	FieldStatusUnsure  FieldStatus = "unsure"
	FieldStatusMissing FieldStatus = "missing"
)
