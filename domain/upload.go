package domain

// UploadState is the externally observable state of a submission.
// Processing between intake and a terminal state is not a state of its own.
type UploadState string

const (
	UploadStatePending UploadState = "pending"
	UploadStateValid   UploadState = "valid"
	UploadStateInvalid UploadState = "invalid"
)

// SourceKind distinguishes the two submission variants.
type SourceKind string

const (
	SourceManifest SourceKind = "manifest"
	SourceBlob     SourceKind = "blob"
)

type ReportMessage struct {
	Tier    int    `json:"tier" bson:"tier"`
	Message string `json:"message" bson:"message"`
}

// ValidationReport is written exactly once when an upload leaves the
// pending state and never mutated afterwards.
type ValidationReport struct {
	Valid    bool            `json:"valid" bson:"valid"`
	Messages []ReportMessage `json:"messages" bson:"messages"`
}

// UploadSource is a closed variant over a remote manifest url and an
// uploaded archive blob.
type UploadSource struct {
	Kind SourceKind `json:"kind" bson:"kind"`

	// ManifestURL is set when Kind == SourceManifest.
	ManifestURL string `json:"manifestUrl,omitempty" bson:"manifestUrl,omitempty"`

	// Blob fields, set when Kind == SourceBlob. StoreKey points at the
	// decoded archive in the blob store.
	Name        string `json:"name,omitempty" bson:"name,omitempty"`
	ContentType string `json:"contentType,omitempty" bson:"contentType,omitempty"`
	StoreKey    string `json:"storeKey,omitempty" bson:"storeKey,omitempty"`
}

// Packaging derives the catalog packaging kind from the source kind.
func (s UploadSource) Packaging() Packaging {
	if s.Kind == SourceBlob {
		return PackagingPackaged
	}
	return PackagingHosted
}

type Upload struct {
	Id       string            `json:"id" bson:"_id"`
	Owner    string            `json:"owner,omitempty" bson:"owner,omitempty"`
	Source   UploadSource      `json:"source" bson:"source"`
	State    UploadState       `json:"state" bson:"state"`
	Report   *ValidationReport `json:"report,omitempty" bson:"report,omitempty"`
	Consumed bool              `json:"consumed" bson:"consumed"`
	Created  int64             `json:"created" bson:"created"`
}

// Processed reports whether validation has reached a terminal state.
func (u Upload) Processed() bool {
	return u.State != UploadStatePending
}

func (u Upload) Anonymous() bool {
	return u.Owner == ""
}
