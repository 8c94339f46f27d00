package model

// DocumentMeta is the display metadata printed at the top of an exported
// feedback document.
type DocumentMeta struct {
	StudentName string
	ExamName    string
	Course      CourseInfo
	Date        string
}

// ExportFile is an encoded document ready to be handed to a response writer.
type ExportFile struct {
	Filename string
	MIMEType string
	Data     []byte
}
