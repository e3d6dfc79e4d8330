// Package inspector is the client side of the external package inspector:
// the service that structurally validates package content and produces the
// tiered message report. The engine only invokes it and interprets the
// result; parsing itself happens on the other side of this contract.
package inspector

import (
	"context"

	"github.com/anyproto/any-sync/app"

	"github.com/SukhnandanMalhotra/addons-server/domain"
)

const CName = "inspector"

type Config struct {
	Endpoint       string `yaml:"endpoint"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type Inspector interface {
	app.Component

	// Inspect validates the submission source and returns the report.
	// A returned error means the inspection itself could not complete;
	// callers translate it into a terminal invalid report.
	Inspect(ctx context.Context, source domain.UploadSource) (domain.ValidationReport, error)
}
