package model

// TaskStatus is the lifecycle state of a parse task on the parsing
// service side.
type TaskStatus string

const (
	TaskStatusStarting   TaskStatus = "Starting"
	TaskStatusProcessing TaskStatus = "Processing"
	TaskStatusSucceeded  TaskStatus = "Succeeded"
	TaskStatusFailed     TaskStatus = "Failed"
)

// Task is the parsing service's view of one submitted document.
type Task struct {
	TaskID  string      `json:"task_id"`
	Status  TaskStatus  `json:"status"`
	Message string      `json:"message,omitempty"`
	Output  *TaskOutput `json:"output,omitempty"`
}

// TaskOutput carries the parse result once a task has succeeded.
type TaskOutput struct {
	PDFURL string         `json:"pdf_url,omitempty"`
	Chunks []*ParsedChunk `json:"chunks,omitempty"`
}

// ParsedChunk is one chunk as returned by the parsing service. Embed is
// the embeddable text representation; Segments are the structural units
// the chunk was assembled from.
type ParsedChunk struct {
	ChunkID  string     `json:"chunk_id"`
	Embed    string     `json:"embed"`
	Segments []*Segment `json:"segments,omitempty"`
}

// SegmentType categorizes a structural unit detected by layout analysis.
type SegmentType string

const (
	SegmentTypeTitle         SegmentType = "Title"
	SegmentTypeSectionHeader SegmentType = "SectionHeader"
	SegmentTypeText          SegmentType = "Text"
	SegmentTypeListItem      SegmentType = "ListItem"
	SegmentTypeTable         SegmentType = "Table"
	SegmentTypePicture       SegmentType = "Picture"
	SegmentTypeCaption       SegmentType = "Caption"
	SegmentTypeFormula       SegmentType = "Formula"
	SegmentTypeFootnote      SegmentType = "Footnote"
	SegmentTypePageHeader    SegmentType = "PageHeader"
	SegmentTypePageFooter    SegmentType = "PageFooter"
	SegmentTypePage          SegmentType = "Page"
)

// Segment is a sub-chunk structural unit with optional rendered markdown
// and, for tables and pictures, an image reference.
type Segment struct {
	SegmentID   string      `json:"segment_id"`
	SegmentType SegmentType `json:"segment_type"`
	Markdown    string      `json:"markdown,omitempty"`
	Image       string      `json:"image,omitempty"`
}

// HasImage reports whether this segment type carries an image reference
// worth returning to the caller.
func (s *Segment) HasImage() bool {
	return s.SegmentType == SegmentTypeTable || s.SegmentType == SegmentTypePicture
}
