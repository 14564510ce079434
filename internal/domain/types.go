package domain

import "time"

// ImageResource is a fully-read image selected by the user. It is immutable
// once loaded; picking a new file produces a new ImageResource.
type ImageResource struct {
	Filename string
	MimeType string
	Data     []byte
}

// Diagnosis is the result of one successful image analysis. ID is minted at
// creation and is the only thing session code may compare: two analyses of
// the same image are distinct diagnoses even when their text matches.
type Diagnosis struct {
	ID        string
	Image     ImageResource
	Result    string
	CreatedAt time.Time
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one transcript entry. The trailing assistant turn grows while a
// response streams and is immutable afterwards.
type Turn struct {
	Role Role
	Text string
}

// Detection is a diagnosis record as persisted by the backend.
type Detection struct {
	ID               int64
	OriginalFilename string
	MimeType         string
	Result           string
	CreatedAt        time.Time
}
