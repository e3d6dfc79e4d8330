package uploads

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/util/periodicsync"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/inspector"
	"github.com/SukhnandanMalhotra/addons-server/metrics"
	"github.com/SukhnandanMalhotra/addons-server/store"
	"github.com/SukhnandanMalhotra/addons-server/uploads/uploadrepo"
)

const CName = "uploads"

var log = logger.NewNamed(CName)

// BlobUpload is the archive variant of an intake request. Data is the
// base64 encoded archive content.
type BlobUpload struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

// IntakeRequest carries exactly one submission source: a remote manifest
// url or an uploaded archive.
type IntakeRequest struct {
	Manifest string      `json:"manifest,omitempty"`
	Upload   *BlobUpload `json:"upload,omitempty"`
}

func New() Service {
	return new(service)
}

type Service interface {
	// Intake persists a new upload and schedules asynchronous validation.
	// Policy violations on archive submissions come back as an upload
	// already in the invalid state; Intake itself does not wait for the
	// inspector.
	Intake(ctx context.Context, req IntakeRequest, owner string) (domain.Upload, error)
	// GetStatus returns the upload regardless of requester identity.
	GetStatus(ctx context.Context, id string) (domain.Upload, error)
	app.ComponentRunnable
}

type service struct {
	conf  Config
	repo  uploadrepo.UploadRepo
	store store.Store
	insp  inspector.Inspector

	queue     chan string
	wg        sync.WaitGroup
	runCtx    context.Context
	runCancel context.CancelFunc
	ticker    periodicsync.PeriodicSync
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.conf = a.MustComponent("config").(configGetter).GetUploads()
	s.repo = a.MustComponent(uploadrepo.CName).(uploadrepo.UploadRepo)
	s.store = a.MustComponent(store.CName).(store.Store)
	s.insp = a.MustComponent(inspector.CName).(inspector.Inspector)
	s.queue = make(chan string, s.conf.queueSize())
	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.ticker = periodicsync.NewPeriodicSync(60, 0, s.requeuePending, log)
	return
}

func (s *service) Run(ctx context.Context) (err error) {
	for i := 0; i < s.conf.workers(); i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.ticker.Run()
	return
}

func (s *service) Intake(ctx context.Context, req IntakeRequest, owner string) (upload domain.Upload, err error) {
	if req.Upload != nil {
		return s.intakeBlob(ctx, *req.Upload, owner)
	}
	if req.Manifest == "" {
		return upload, apierrors.NewValidationError("manifest", "This field is required.")
	}
	return s.intakeManifest(ctx, req.Manifest, owner)
}

func (s *service) intakeManifest(ctx context.Context, manifest, owner string) (upload domain.Upload, err error) {
	u, err := url.Parse(manifest)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return upload, apierrors.NewValidationError("manifest", "Enter a valid URL.")
	}
	upload = s.newUpload(owner, domain.UploadSource{
		Kind:        domain.SourceManifest,
		ManifestURL: manifest,
	})
	if err = s.repo.Create(ctx, upload); err != nil {
		return
	}
	metrics.UploadsIntakeTotal.WithLabelValues(string(domain.SourceManifest)).Inc()
	s.enqueue(upload.Id)
	return
}

func (s *service) intakeBlob(ctx context.Context, blob BlobUpload, owner string) (upload domain.Upload, err error) {
	source := domain.UploadSource{
		Kind:        domain.SourceBlob,
		Name:        blob.Name,
		ContentType: blob.Type,
	}
	if msg := s.policyViolation(blob); msg != "" {
		return s.rejectBlob(ctx, source, owner, msg)
	}
	data, err := base64.StdEncoding.DecodeString(blob.Data)
	if err != nil {
		return s.rejectBlob(ctx, source, owner, "File must be base64 encoded.")
	}
	if max := s.conf.maxPackageSize(); int64(len(data)) > max {
		msg := fmt.Sprintf("Packaged app too large for submission. Packages must be less than %s.",
			humanize.Bytes(uint64(max)))
		return s.rejectBlob(ctx, source, owner, msg)
	}

	upload = s.newUpload(owner, source)
	upload.Source.StoreKey = "uploads/" + upload.Id
	if err = s.store.Put(ctx, upload.Source.StoreKey, bytes.NewReader(data)); err != nil {
		return upload, fmt.Errorf("store package: %w", err)
	}
	if err = s.repo.Create(ctx, upload); err != nil {
		return
	}
	metrics.UploadsIntakeTotal.WithLabelValues(string(domain.SourceBlob)).Inc()
	s.enqueue(upload.Id)
	return
}

// policyViolation checks the request shape before any decoding. The
// returned message becomes the first (and only) report entry.
func (s *service) policyViolation(blob BlobUpload) string {
	if blob.Type == "" || blob.Data == "" {
		return "Type and data are required."
	}
	if blob.Name == "" {
		return "Name not specified."
	}
	if blob.Type != s.conf.acceptedType() {
		return fmt.Sprintf("Type must be %s.", s.conf.acceptedType())
	}
	return ""
}

// rejectBlob records a policy violation as a terminal invalid upload
// without ever touching the inspector.
func (s *service) rejectBlob(ctx context.Context, source domain.UploadSource, owner, msg string) (upload domain.Upload, err error) {
	upload = s.newUpload(owner, source)
	upload.State = domain.UploadStateInvalid
	upload.Report = &domain.ValidationReport{
		Valid:    false,
		Messages: []domain.ReportMessage{{Tier: 1, Message: msg}},
	}
	if err = s.repo.Create(ctx, upload); err != nil {
		return
	}
	metrics.UploadsValidatedTotal.WithLabelValues(string(domain.UploadStateInvalid)).Inc()
	return
}

func (s *service) newUpload(owner string, source domain.UploadSource) domain.Upload {
	return domain.Upload{
		Id:      uuid.New().String(),
		Owner:   owner,
		Source:  source,
		State:   domain.UploadStatePending,
		Created: time.Now().Unix(),
	}
}

func (s *service) GetStatus(ctx context.Context, id string) (domain.Upload, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) enqueue(id string) {
	select {
	case s.queue <- id:
	default:
		// queue full: the periodic requeue pass picks the upload up later
		log.Warn("validation queue full", zap.String("uploadId", id))
	}
}

func (s *service) worker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case id := <-s.queue:
			s.process(s.runCtx, id)
		}
	}
}

func (s *service) process(ctx context.Context, id string) {
	upload, err := s.repo.Get(ctx, id)
	if err != nil {
		log.Error("load upload for validation", zap.String("uploadId", id), zap.Error(err))
		return
	}
	if upload.Processed() {
		return
	}

	report, err := s.insp.Inspect(ctx, upload.Source)
	if err != nil {
		// inspector failures are absorbed into a terminal invalid report
		report = domain.ValidationReport{
			Valid: false,
			Messages: []domain.ReportMessage{
				{Tier: 1, Message: fmt.Sprintf("Validation could not be completed: %s.", err.Error())},
			},
		}
	}
	state := domain.UploadStateInvalid
	if report.Valid {
		state = domain.UploadStateValid
	}
	if err = s.repo.SetReport(ctx, id, state, report); err != nil {
		log.Error("store validation report", zap.String("uploadId", id), zap.Error(err))
		return
	}
	if state == domain.UploadStateInvalid && upload.Source.StoreKey != "" {
		// a rejected archive will never be consumed, drop it from the store
		if err = s.store.DeletePath(ctx, upload.Source.StoreKey); err != nil {
			log.Warn("delete rejected package", zap.String("uploadId", id), zap.Error(err))
		}
	}
	metrics.UploadsValidatedTotal.WithLabelValues(string(state)).Inc()
	log.Debug("upload validated", zap.String("uploadId", id), zap.String("state", string(state)))
}

func (s *service) requeuePending(ctx context.Context) error {
	before := time.Now().Unix() - s.conf.requeueAfter()
	ids, err := s.repo.ListPendingBefore(ctx, before)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.enqueue(id)
	}
	return nil
}

func (s *service) Close(ctx context.Context) (err error) {
	s.ticker.Close()
	s.runCancel()
	s.wg.Wait()
	return
}
