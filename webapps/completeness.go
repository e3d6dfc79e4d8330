package webapps

import "github.com/SukhnandanMalhotra/addons-server/domain"

// CompletenessChecker decides whether a webapp carries everything needed
// to enter the review queue, returning the names of missing requirements.
type CompletenessChecker interface {
	IsComplete(webapp domain.Webapp) (complete bool, missing []string)
}

type metadataCompleteness struct{}

func (metadataCompleteness) IsComplete(webapp domain.Webapp) (complete bool, missing []string) {
	meta := webapp.Metadata
	if meta.Name == "" {
		missing = append(missing, "name")
	}
	if meta.Summary == "" {
		missing = append(missing, "summary")
	}
	if meta.SupportEmail == "" {
		missing = append(missing, "support email")
	}
	if len(meta.Categories) == 0 {
		missing = append(missing, "categories")
	}
	if len(meta.DeviceTypes) == 0 {
		missing = append(missing, "device types")
	}
	return len(missing) == 0, missing
}
