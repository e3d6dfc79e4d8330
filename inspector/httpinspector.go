package inspector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/store"
)

var log = logger.NewNamed(CName)

type configGetter interface {
	GetInspector() Config
}

func New() Inspector {
	return new(httpInspector)
}

type httpInspector struct {
	conf   Config
	store  store.Store
	client *http.Client
}

func (h *httpInspector) Name() (name string) {
	return CName
}

func (h *httpInspector) Init(a *app.App) (err error) {
	h.conf = a.MustComponent("config").(configGetter).GetInspector()
	h.store = a.MustComponent(store.CName).(store.Store)
	timeout := time.Duration(h.conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Minute
	}
	h.client = &http.Client{Timeout: timeout}
	return
}

func (h *httpInspector) Inspect(ctx context.Context, source domain.UploadSource) (report domain.ValidationReport, err error) {
	switch source.Kind {
	case domain.SourceManifest:
		return h.inspectManifest(ctx, source.ManifestURL)
	case domain.SourceBlob:
		return h.inspectBlob(ctx, source)
	default:
		return report, fmt.Errorf("unknown source kind: %s", source.Kind)
	}
}

func (h *httpInspector) inspectManifest(ctx context.Context, manifestUrl string) (report domain.ValidationReport, err error) {
	body, err := json.Marshal(struct {
		Manifest string `json:"manifest"`
	}{Manifest: manifestUrl})
	if err != nil {
		return
	}
	endpoint, err := url.JoinPath(h.conf.Endpoint, "manifest")
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func (h *httpInspector) inspectBlob(ctx context.Context, source domain.UploadSource) (report domain.ValidationReport, err error) {
	blob, err := h.store.Get(ctx, source.StoreKey)
	if err != nil {
		return report, fmt.Errorf("fetch package from store: %w", err)
	}
	defer func() {
		_ = blob.Close()
	}()
	endpoint, err := url.JoinPath(h.conf.Endpoint, "package")
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, blob)
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", source.ContentType)
	req.Header.Set("X-Package-Name", source.Name)
	return h.do(req)
}

func (h *httpInspector) do(req *http.Request) (report domain.ValidationReport, err error) {
	resp, err := h.client.Do(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return report, fmt.Errorf("inspector responded with status %d", resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return report, fmt.Errorf("decode inspector report: %w", err)
	}
	log.Debug("inspection finished", zap.Bool("valid", report.Valid), zap.Int("messages", len(report.Messages)))
	return
}
