package domain

import "time"

type AssetState string

const (
	AssetActive   AssetState = "active"
	AssetRejected AssetState = "rejected"
)

// Gallery is one tenant: a username/password protected image collection
// backed by its own directory under the storage root.
type Gallery struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"createdAt"`
	UploadDir      string    `json:"uploadDir"`
	AllowUploads   bool      `json:"allowUploads"`
	AllowDownloads bool      `json:"allowDownloads"`
}

// Asset describes a stored image file inside a gallery.
type Asset struct {
	Name       string     `json:"name"`
	State      AssetState `json:"state"`
	SizeBytes  int64      `json:"sizeBytes"`
	ModifiedAt time.Time  `json:"modifiedAt"`
	URL        string     `json:"url,omitempty"`
}

// UploadResult is the partitioned outcome of a batch upload: per-file
// successes and per-file error strings, never all-or-nothing.
type UploadResult struct {
	Uploaded []Asset  `json:"files"`
	Errors   []string `json:"errors,omitempty"`
}

// OrphanFolder is a gallery directory with no matching registry record.
type OrphanFolder struct {
	Name       string `json:"name"`
	FileCount  int    `json:"files"`
	TotalBytes int64  `json:"sizeBytes"`
}

// PurgeResult reports per-folder outcomes of an orphan purge.
type PurgeResult struct {
	Deleted int                 `json:"deleted"`
	Failed  int                 `json:"failed"`
	Folders []PurgeFolderResult `json:"folders"`
}

type PurgeFolderResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "deleted" or "failed"
	Message string `json:"message,omitempty"`
}

type IdentityKind string

const (
	IdentityAnonymous IdentityKind = "anonymous"
	IdentityGallery   IdentityKind = "gallery"
	IdentityAdmin     IdentityKind = "admin"
)

// Identity is the request-scoped authenticated principal, resolved once at
// the HTTP boundary and passed explicitly into handlers.
type Identity struct {
	Kind      IdentityKind `json:"kind"`
	GalleryID string       `json:"galleryId,omitempty"`
	Username  string       `json:"username,omitempty"`
}

func (i Identity) IsAdmin() bool { return i.Kind == IdentityAdmin }
