package webapps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/accounts"
	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/hooks"
	"github.com/SukhnandanMalhotra/addons-server/metrics"
	"github.com/SukhnandanMalhotra/addons-server/uploads/uploadrepo"
	"github.com/SukhnandanMalhotra/addons-server/webapps/webapprepo"
)

const CName = "webapps"

var log = logger.NewNamed(CName)

const createAttempts = 5

// metadataForm mirrors the owner-editable fields with their update-time
// constraints.
type metadataForm struct {
	Name         string   `validate:"required"`
	SupportEmail string   `validate:"omitempty,email"`
	Categories   []string `validate:"required,min=1"`
	DeviceTypes  []string `validate:"required,min=1"`
}

func New() Service {
	return new(service)
}

type Service interface {
	// Create converts a validated upload into exactly one webapp.
	Create(ctx context.Context, uploadId, requester string, meta domain.Metadata) (domain.Webapp, error)
	Get(ctx context.Context, id string) (domain.Webapp, error)
	GetBySlug(ctx context.Context, slug string) (domain.Webapp, error)
	ListByOwner(ctx context.Context, owner string) ([]domain.Webapp, error)
	UpdateMetadata(ctx context.Context, id, requester string, meta domain.Metadata) (domain.Webapp, error)
	// UpdateStatus is the single client entry point of the publication
	// state machine.
	UpdateStatus(ctx context.Context, id, requester string, target domain.Status) (domain.Webapp, error)
	SetDisabled(ctx context.Context, id, requester string, disabled bool) (domain.Webapp, error)
	app.ComponentRunnable
}

type service struct {
	db       db.Database
	repo     webapprepo.WebappRepo
	uploads  uploadrepo.UploadRepo
	accounts accounts.Service
	hooks    hooks.Service

	slugs    SlugAllocator
	complete CompletenessChecker
	validate *validator.Validate
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.db = a.MustComponent(db.CName).(db.Database)
	s.repo = a.MustComponent(webapprepo.CName).(webapprepo.WebappRepo)
	s.uploads = a.MustComponent(uploadrepo.CName).(uploadrepo.UploadRepo)
	s.accounts = a.MustComponent(accounts.CName).(accounts.Service)
	s.hooks = a.MustComponent(hooks.CName).(hooks.Service)
	s.slugs = &repoSlugAllocator{repo: s.repo}
	s.complete = metadataCompleteness{}
	s.validate = validator.New()
	return
}

func (s *service) Run(ctx context.Context) (err error) {
	return
}

func (s *service) Create(ctx context.Context, uploadId, requester string, meta domain.Metadata) (webapp domain.Webapp, err error) {
	upload, err := s.uploads.Get(ctx, uploadId)
	if err != nil {
		return
	}
	accepted, err := s.accounts.HasAcceptedTerms(ctx, requester)
	if err != nil {
		return
	}
	if !accepted {
		return webapp, apierrors.ErrTermsNotAccepted
	}
	if upload.State != domain.UploadStateValid {
		return webapp, &apierrors.InvalidSubmissionError{Report: upload.Report}
	}
	if upload.Anonymous() {
		return webapp, apierrors.ErrForbiddenAnonymous
	}
	if upload.Owner != requester {
		return webapp, apierrors.ErrForbiddenNotOwner
	}
	if upload.Consumed {
		return webapp, apierrors.ErrAlreadyConsumed
	}
	if meta.Name == "" {
		return webapp, apierrors.NewValidationError("name", "This field is required.")
	}

	// Slug races and concurrent consumers both abort the transaction;
	// re-allocating on the next attempt moves past a taken slug, while a
	// lost consume race surfaces as a terminal error below.
	for attempt := 0; attempt < createAttempts; attempt++ {
		var slug string
		if slug, err = s.slugs.Allocate(ctx, meta.Name); err != nil {
			return
		}
		now := time.Now().Unix()
		webapp = domain.Webapp{
			Id:        uuid.New().String(),
			Slug:      slug,
			Owners:    []string{requester},
			Status:    domain.StatusIncomplete,
			Packaging: upload.Source.Packaging(),
			Metadata:  meta,
			UploadId:  upload.Id,
			Version:   1,
			Created:   now,
			Updated:   now,
		}
		err = s.db.Tx(ctx, func(txCtx mongo.SessionContext) error {
			if err := s.uploads.MarkConsumed(txCtx, upload.Id); err != nil {
				return err
			}
			return s.repo.Create(txCtx, webapp)
		})
		if errors.Is(err, webapprepo.ErrSlugTaken) {
			continue
		}
		if errors.Is(err, uploadrepo.ErrNotConsumable) {
			return domain.Webapp{}, s.consumeFailure(ctx, upload.Id)
		}
		if err != nil {
			return domain.Webapp{}, err
		}
		metrics.WebappsCreatedTotal.Inc()
		s.hooks.Notify(hooks.Event{Kind: hooks.EventAppCreated, AppId: webapp.Id, Identity: requester})
		log.Info("webapp created",
			zap.String("appId", webapp.Id),
			zap.String("slug", webapp.Slug),
			zap.String("uploadId", upload.Id))
		return webapp, nil
	}
	return domain.Webapp{}, fmt.Errorf("could not allocate a unique slug for %q", meta.Name)
}

// consumeFailure distinguishes why the guarded consumed flip matched
// nothing: the upload was consumed or invalidated between the precondition
// checks and the transaction.
func (s *service) consumeFailure(ctx context.Context, uploadId string) error {
	upload, err := s.uploads.Get(ctx, uploadId)
	if err != nil {
		return err
	}
	if upload.Consumed {
		return apierrors.ErrAlreadyConsumed
	}
	return &apierrors.InvalidSubmissionError{Report: upload.Report}
}

func (s *service) Get(ctx context.Context, id string) (domain.Webapp, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) GetBySlug(ctx context.Context, slug string) (domain.Webapp, error) {
	return s.repo.GetBySlug(ctx, slug)
}

func (s *service) ListByOwner(ctx context.Context, owner string) ([]domain.Webapp, error) {
	return s.repo.ListByOwner(ctx, owner)
}

func (s *service) UpdateMetadata(ctx context.Context, id, requester string, meta domain.Metadata) (webapp domain.Webapp, err error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return
	}
	if !current.OwnedBy(requester) {
		return webapp, apierrors.ErrForbiddenNotOwner
	}
	if err = s.validateMetadata(meta); err != nil {
		return
	}
	return s.repo.UpdateMetadata(ctx, id, current.Version, meta)
}

func (s *service) validateMetadata(meta domain.Metadata) error {
	form := metadataForm{
		Name:         meta.Name,
		SupportEmail: meta.SupportEmail,
		Categories:   meta.Categories,
		DeviceTypes:  meta.DeviceTypes,
	}
	err := s.validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0].Field()
		switch field {
		case "Name":
			return apierrors.NewValidationError("name", "This field is required.")
		case "SupportEmail":
			return apierrors.NewValidationError("support_email", "Enter a valid email address.")
		case "Categories":
			return apierrors.NewValidationError("categories", "This field is required.")
		case "DeviceTypes":
			return apierrors.NewValidationError("device_types", "This field is required.")
		}
	}
	return err
}

func (s *service) UpdateStatus(ctx context.Context, id, requester string, target domain.Status) (webapp domain.Webapp, err error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return
	}
	if !current.OwnedBy(requester) {
		return webapp, apierrors.ErrForbiddenNotOwner
	}

	switch target {
	case domain.StatusPending:
		complete, missing := s.complete.IsComplete(current)
		if !complete {
			return webapp, apierrors.NewValidationError("status",
				fmt.Sprintf("App is not complete. Missing: %s.", strings.Join(missing, ", ")))
		}
	case domain.StatusPublic:
		// the one system-permitted escalation through this entry point:
		// lifting the release gate once review has parked the app in
		// waiting
		if current.Status != domain.StatusPublicWaiting {
			return webapp, notAvailableChoice(target)
		}
	default:
		return webapp, notAvailableChoice(target)
	}

	if webapp, err = s.repo.SetStatus(ctx, id, target); err != nil {
		return
	}
	metrics.StatusTransitionsTotal.WithLabelValues(string(target)).Inc()
	s.hooks.Notify(hooks.Event{Kind: hooks.EventStatusChanged, AppId: id, Identity: requester})
	return
}

func notAvailableChoice(target domain.Status) error {
	return apierrors.NewValidationError("status",
		fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", target))
}

func (s *service) SetDisabled(ctx context.Context, id, requester string, disabled bool) (webapp domain.Webapp, err error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return
	}
	if !current.OwnedBy(requester) {
		return webapp, apierrors.ErrForbiddenNotOwner
	}

	status := current.Status
	if disabled && (status == domain.StatusPending || status == domain.StatusPublicWaiting) {
		// disabling clears an in-progress publication target; re-enabling
		// later does not restore it
		status = domain.StatusIncomplete
	}
	if webapp, err = s.repo.SetDisabled(ctx, id, disabled, status); err != nil {
		return
	}
	s.hooks.Notify(hooks.Event{Kind: hooks.EventAppDisabled, AppId: id, Identity: requester})
	return
}

func (s *service) Close(ctx context.Context) (err error) {
	return
}
