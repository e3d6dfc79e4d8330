package domain

import "go.mongodb.org/mongo-driver/bson/primitive"

// FeaturedPlacement associates a webapp with a set of regions, optionally
// scoped to a category. Placements are curated externally and read-only
// here; creation order is carried by the ObjectID.
type FeaturedPlacement struct {
	Id       primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	AppId    string             `json:"appId" bson:"appId"`
	Category string             `json:"category,omitempty" bson:"category,omitempty"`
	Regions  []string           `json:"regions" bson:"regions"`
}
