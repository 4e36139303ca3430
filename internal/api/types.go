package api

// RemoteNote is the backend's record of one shared note, as returned by
// the account listing endpoint.
type RemoteNote struct {
	ID      string `json:"id"`
	Updated int64  `json:"updated"`

	// Path is the vault-relative path of the local note this remote
	// record maps to. It is never sent by the backend; reconciliation
	// fills it in as a transient join result.
	Path string `json:"path,omitempty"`
}

// ShareResult is the backend's response to a create or update upload.
type ShareResult struct {
	ID   string `json:"id"`
	Link string `json:"link"`
}

// noteRequest is the payload for note create and update uploads.
type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}
