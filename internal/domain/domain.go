package domain

// FileEntry is one uploaded file within a bundle. ID is the on-disk payload
// key, generated at admission time and decoupled from the user-supplied name.
type FileEntry struct {
	ID           string `json:"id"`
	OriginalName string `json:"originalName"`
	// file size in bytes, captured at admission time
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
}

// Bundle is the share unit: one batch of files admitted together, gated by a
// single password and a single expiry clock, deleted as a whole.
type Bundle struct {
	ID    string      `json:"-"`
	Files []FileEntry `json:"files"`
	// empty means no password is required
	PasswordHash string `json:"passwordHash,omitempty"`
	// unix millis; zero is treated as already expired
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// TotalSize sums the recorded sizes of all files in the bundle.
func (b Bundle) TotalSize() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.Size
	}
	return total
}
