// Package gateway exposes the marketplace core over HTTP. Authentication
// happens upstream; the requester identity arrives in the
// X-Forwarded-Identity header and an empty value means anonymous.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/accounts"
	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/featured"
	"github.com/SukhnandanMalhotra/addons-server/gateway/gatewayconfig"
	"github.com/SukhnandanMalhotra/addons-server/uploads"
	"github.com/SukhnandanMalhotra/addons-server/webapps"
)

const CName = "gateway"

var log = logger.NewNamed(CName)

const identityHeader = "X-Forwarded-Identity"

func New() Gateway {
	return new(gateway)
}

type Gateway interface {
	app.ComponentRunnable
}

type gateway struct {
	server   *http.Server
	config   gatewayconfig.Config
	uploads  uploads.Service
	webapps  webapps.Service
	accounts accounts.Service
	featured featured.Service
}

func (g *gateway) Name() (name string) {
	return CName
}

func (g *gateway) Init(a *app.App) (err error) {
	g.config = a.MustComponent("config").(gatewayconfig.ConfigGetter).GetGateway()
	g.uploads = a.MustComponent(uploads.CName).(uploads.Service)
	g.webapps = a.MustComponent(webapps.CName).(webapps.Service)
	g.accounts = a.MustComponent(accounts.CName).(accounts.Service)
	g.featured = a.MustComponent(featured.CName).(featured.Service)

	r := chi.NewRouter()
	r.Use(requestMetrics)
	r.Get("/health", g.healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Post("/validation", g.postValidation)
		r.Get("/validation/{id}", g.getValidation)
		r.Post("/apps", g.postApps)
		r.Get("/apps", g.listApps)
		r.Get("/apps/{id}", g.getApp)
		r.Put("/apps/{id}", g.putApp)
		r.Get("/apps/{id}/status", g.getAppStatus)
		r.Patch("/apps/{id}/status", g.patchAppStatus)
		r.Post("/account/terms", g.postTerms)
		r.Get("/featured/home", g.getFeaturedHome)
	})

	readTimeout := time.Duration(g.config.ReadTimeoutSeconds) * time.Second
	writeTimeout := time.Duration(g.config.WriteTimeoutSeconds) * time.Second
	g.server = &http.Server{
		Addr:         g.config.Addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return
}

func (g *gateway) Run(ctx context.Context) (err error) {
	var errCh = make(chan error)
	go func() {
		errCh <- g.server.ListenAndServe()
	}()
	select {
	case err = <-errCh:
		return err
	case <-time.After(200 * time.Millisecond):
		log.Info("gateway server started", zap.String("addr", g.config.Addr))
		return
	}
}

func (g *gateway) Close(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return g.server.Shutdown(ctx)
}

func identity(r *http.Request) string {
	return r.Header.Get(identityHeader)
}

type uploadView struct {
	Id         string                   `json:"id"`
	Processed  bool                     `json:"processed"`
	Valid      bool                     `json:"valid"`
	Validation *domain.ValidationReport `json:"validation,omitempty"`
}

func newUploadView(u domain.Upload) uploadView {
	return uploadView{
		Id:         u.Id,
		Processed:  u.Processed(),
		Valid:      u.State == domain.UploadStateValid,
		Validation: u.Report,
	}
}

func (g *gateway) postValidation(w http.ResponseWriter, r *http.Request) {
	var req uploads.IntakeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	upload, err := g.uploads.Intake(r.Context(), req, identity(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUploadView(upload))
}

func (g *gateway) getValidation(w http.ResponseWriter, r *http.Request) {
	upload, err := g.uploads.GetStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newUploadView(upload))
}

// metadataBody is the wire shape of the owner-editable fields.
type metadataBody struct {
	Name          string   `json:"name"`
	Summary       string   `json:"summary"`
	SupportEmail  string   `json:"support_email"`
	Homepage      string   `json:"homepage"`
	PrivacyPolicy string   `json:"privacy_policy"`
	PremiumType   string   `json:"premium_type"`
	Categories    []string `json:"categories"`
	DeviceTypes   []string `json:"device_types"`
}

func (b metadataBody) toDomain() domain.Metadata {
	return domain.Metadata{
		Name:          b.Name,
		Summary:       b.Summary,
		SupportEmail:  b.SupportEmail,
		Homepage:      b.Homepage,
		PrivacyPolicy: b.PrivacyPolicy,
		PremiumType:   b.PremiumType,
		Categories:    b.Categories,
		DeviceTypes:   b.DeviceTypes,
	}
}

type createAppBody struct {
	// Upload and Manifest both carry an upload id; clients historically
	// use "manifest" for hosted submissions and "upload" for packaged ones.
	Upload   string `json:"upload"`
	Manifest string `json:"manifest"`
	metadataBody
}

func (g *gateway) postApps(w http.ResponseWriter, r *http.Request) {
	var body createAppBody
	if !decodeBody(w, r, &body) {
		return
	}
	uploadId := body.Upload
	if uploadId == "" {
		uploadId = body.Manifest
	}
	webapp, err := g.webapps.Create(r.Context(), uploadId, identity(r), body.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, webapp)
}

func (g *gateway) listApps(w http.ResponseWriter, r *http.Request) {
	owner := identity(r)
	if owner == "" {
		writeReason(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	apps, err := g.webapps.ListByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	if apps == nil {
		apps = []domain.Webapp{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (g *gateway) getApp(w http.ResponseWriter, r *http.Request) {
	webapp, err := g.lookupApp(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webapp)
}

// lookupApp resolves the path parameter as an app id first and falls back
// to the slug, so both address forms work.
func (g *gateway) lookupApp(r *http.Request) (domain.Webapp, error) {
	id := chi.URLParam(r, "id")
	webapp, err := g.webapps.Get(r.Context(), id)
	if errors.Is(err, apierrors.ErrNotFound) {
		return g.webapps.GetBySlug(r.Context(), id)
	}
	return webapp, err
}

func (g *gateway) putApp(w http.ResponseWriter, r *http.Request) {
	var body metadataBody
	if !decodeBody(w, r, &body) {
		return
	}
	webapp, err := g.webapps.UpdateMetadata(r.Context(), chi.URLParam(r, "id"), identity(r), body.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, webapp)
}

type statusView struct {
	Status         domain.Status `json:"status"`
	DisabledByUser bool          `json:"disabled_by_user"`
}

type statusPatch struct {
	Status         *domain.Status `json:"status"`
	DisabledByUser *bool          `json:"disabled_by_user"`
}

func (g *gateway) getAppStatus(w http.ResponseWriter, r *http.Request) {
	webapp, err := g.lookupApp(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusView{Status: webapp.EffectiveStatus(), DisabledByUser: webapp.DisabledByUser})
}

func (g *gateway) patchAppStatus(w http.ResponseWriter, r *http.Request) {
	var patch statusPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	id := chi.URLParam(r, "id")
	requester := identity(r)

	var webapp domain.Webapp
	var err error
	switch {
	case patch.DisabledByUser != nil:
		webapp, err = g.webapps.SetDisabled(r.Context(), id, requester, *patch.DisabledByUser)
	case patch.Status != nil:
		webapp, err = g.webapps.UpdateStatus(r.Context(), id, requester, *patch.Status)
	default:
		writeReason(w, http.StatusBadRequest, "Nothing to update.")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusView{Status: webapp.EffectiveStatus(), DisabledByUser: webapp.DisabledByUser})
}

func (g *gateway) postTerms(w http.ResponseWriter, r *http.Request) {
	requester := identity(r)
	if requester == "" {
		writeReason(w, http.StatusUnauthorized, "Authentication required.")
		return
	}
	if err := g.accounts.AcceptTerms(r.Context(), requester); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *gateway) getFeaturedHome(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	apps, err := g.featured.Resolve(r.Context(), q.Get("region"), q.Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	if apps == nil {
		apps = []domain.Webapp{}
	}
	writeJSON(w, http.StatusOK, apps)
}

func (g *gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeReason(w, http.StatusBadRequest, "Invalid JSON payload.")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("response write failed", zap.Error(err))
	}
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"reason": reason})
}

// writeError maps the shared error kinds onto the wire envelope. Field
// errors keep the form style {"error_message": {field: [messages]}} so
// each rejected field stays addressable.
func writeError(w http.ResponseWriter, err error) {
	var fieldErr *apierrors.ValidationError
	if errors.As(err, &fieldErr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error_message": map[string][]string{fieldErr.Field: {fieldErr.Message}},
		})
		return
	}
	var invalid *apierrors.InvalidSubmissionError
	if errors.As(err, &invalid) {
		body := map[string]any{"reason": invalid.Error()}
		if invalid.Report != nil {
			body["validation"] = invalid.Report
		}
		writeJSON(w, http.StatusBadRequest, body)
		return
	}
	switch {
	case errors.Is(err, apierrors.ErrNotFound):
		writeReason(w, http.StatusNotFound, "Not found.")
	case errors.Is(err, apierrors.ErrForbiddenAnonymous):
		writeReason(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apierrors.ErrForbiddenNotOwner):
		writeReason(w, http.StatusForbidden, err.Error())
	case errors.Is(err, apierrors.ErrTermsNotAccepted):
		writeReason(w, http.StatusForbidden, "Terms of service not accepted.")
	case errors.Is(err, apierrors.ErrAlreadyConsumed):
		writeReason(w, http.StatusConflict, err.Error())
	case errors.Is(err, apierrors.ErrConflict):
		writeReason(w, http.StatusConflict, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		writeReason(w, http.StatusInternalServerError, "Internal error.")
	}
}
