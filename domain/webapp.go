package domain

// Status is the stored publication status of a webapp.
type Status string

const (
	StatusIncomplete    Status = "incomplete"
	StatusPending       Status = "pending"
	StatusPublicWaiting Status = "waiting"
	StatusPublic        Status = "public"
	StatusDisabled      Status = "disabled"
	StatusNull          Status = "null"
)

type Packaging string

const (
	PackagingPackaged Packaging = "packaged"
	PackagingHosted   Packaging = "hosted"
)

// Metadata holds the owner-mutable descriptive fields of a webapp.
type Metadata struct {
	Name          string   `json:"name" bson:"name"`
	Summary       string   `json:"summary,omitempty" bson:"summary,omitempty"`
	SupportEmail  string   `json:"supportEmail,omitempty" bson:"supportEmail,omitempty"`
	Homepage      string   `json:"homepage,omitempty" bson:"homepage,omitempty"`
	PrivacyPolicy string   `json:"privacyPolicy,omitempty" bson:"privacyPolicy,omitempty"`
	PremiumType   string   `json:"premiumType,omitempty" bson:"premiumType,omitempty"`
	Categories    []string `json:"categories" bson:"categories"`
	DeviceTypes   []string `json:"deviceTypes" bson:"deviceTypes"`
}

type Webapp struct {
	Id             string    `json:"id" bson:"_id"`
	Slug           string    `json:"slug" bson:"slug"`
	Owners         []string  `json:"owners" bson:"owners"`
	Status         Status    `json:"status" bson:"status"`
	DisabledByUser bool      `json:"disabledByUser" bson:"disabledByUser"`
	Packaging      Packaging `json:"packaging" bson:"packaging"`
	Metadata       Metadata  `json:"metadata" bson:"metadata"`
	UploadId       string    `json:"uploadId" bson:"uploadId"`

	// Version guards read-modify-write metadata updates.
	Version int64 `json:"version" bson:"version"`

	Created int64 `json:"created" bson:"created"`
	Updated int64 `json:"updated" bson:"updated"`
}

// EffectiveStatus is the externally observed status: a user disable
// forces null regardless of the stored status.
func (w Webapp) EffectiveStatus() Status {
	if w.DisabledByUser {
		return StatusNull
	}
	return w.Status
}

func (w Webapp) OwnedBy(identity string) bool {
	for _, o := range w.Owners {
		if o == identity {
			return true
		}
	}
	return false
}
