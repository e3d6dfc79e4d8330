package uploads

import (
	"bytes"
	"context"
	"encoding/base64"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/inspector"
	"github.com/SukhnandanMalhotra/addons-server/store"
	"github.com/SukhnandanMalhotra/addons-server/uploads/uploadrepo"
)

var ctx = context.Background()

func validBlob() *BlobUpload {
	return &BlobUpload{
		Name: "mozball.zip",
		Type: "application/zip",
		Data: base64.StdEncoding.EncodeToString([]byte("PK\x03\x04 fake archive")),
	}
}

func TestService_Intake_Manifest(t *testing.T) {
	t.Run("missing source", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.Intake(ctx, IntakeRequest{}, "a1")
		assertFieldError(t, err, "manifest", "This field is required.")
	})
	t.Run("invalid url", func(t *testing.T) {
		fx := newFixture(t)
		for _, manifest := range []string{"not a url", "ftp://foo.com/x.webapp", "/relative/path"} {
			_, err := fx.Intake(ctx, IntakeRequest{Manifest: manifest}, "a1")
			assertFieldError(t, err, "manifest", "Enter a valid URL.")
		}
	})
	t.Run("valid url is validated asynchronously", func(t *testing.T) {
		fx := newFixture(t)
		fx.insp.report = domain.ValidationReport{Valid: true}
		upload, err := fx.Intake(ctx, IntakeRequest{Manifest: "http://foo.com/manifest.webapp"}, "a1")
		require.NoError(t, err)
		assert.Equal(t, domain.UploadStatePending, upload.State)
		assert.Nil(t, upload.Report)

		got := fx.waitProcessed(t, upload.Id)
		assert.Equal(t, domain.UploadStateValid, got.State)
		require.NotNil(t, got.Report)
		assert.True(t, got.Report.Valid)
	})
	t.Run("inspector rejection", func(t *testing.T) {
		fx := newFixture(t)
		fx.insp.report = domain.ValidationReport{
			Valid:    false,
			Messages: []domain.ReportMessage{{Tier: 2, Message: "Manifest is missing the name property."}},
		}
		upload, err := fx.Intake(ctx, IntakeRequest{Manifest: "http://foo.com/manifest.webapp"}, "a1")
		require.NoError(t, err)

		got := fx.waitProcessed(t, upload.Id)
		assert.Equal(t, domain.UploadStateInvalid, got.State)
		require.NotNil(t, got.Report)
		require.Len(t, got.Report.Messages, 1)
		assert.Equal(t, "Manifest is missing the name property.", got.Report.Messages[0].Message)
	})
	t.Run("inspector failure becomes invalid report", func(t *testing.T) {
		fx := newFixture(t)
		fx.insp.err = io.ErrUnexpectedEOF
		upload, err := fx.Intake(ctx, IntakeRequest{Manifest: "http://foo.com/manifest.webapp"}, "a1")
		require.NoError(t, err)

		got := fx.waitProcessed(t, upload.Id)
		assert.Equal(t, domain.UploadStateInvalid, got.State)
		require.NotNil(t, got.Report)
		require.Len(t, got.Report.Messages, 1)
		assert.Equal(t, "Validation could not be completed: unexpected EOF.", got.Report.Messages[0].Message)
	})
}

func TestService_Intake_Blob(t *testing.T) {
	t.Run("missing type and data", func(t *testing.T) {
		fx := newFixture(t)
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: &BlobUpload{Name: "mozball.zip"}}, "a1")
		require.NoError(t, err)
		assertRejected(t, upload, "Type and data are required.")
	})
	t.Run("missing name", func(t *testing.T) {
		fx := newFixture(t)
		blob := validBlob()
		blob.Name = ""
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: blob}, "a1")
		require.NoError(t, err)
		assertRejected(t, upload, "Name not specified.")
	})
	t.Run("wrong content type", func(t *testing.T) {
		fx := newFixture(t)
		blob := validBlob()
		blob.Type = "text/plain"
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: blob}, "a1")
		require.NoError(t, err)
		assertRejected(t, upload, "Type must be application/zip.")
	})
	t.Run("not base64", func(t *testing.T) {
		fx := newFixture(t)
		blob := validBlob()
		blob.Data = "!!! not base64 !!!"
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: blob}, "a1")
		require.NoError(t, err)
		assertRejected(t, upload, "File must be base64 encoded.")
	})
	t.Run("too large", func(t *testing.T) {
		fx := newFixture(t)
		blob := validBlob()
		blob.Data = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 2048))
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: blob}, "a1")
		require.NoError(t, err)
		require.NotNil(t, upload.Report)
		require.Len(t, upload.Report.Messages, 1)
		assert.Contains(t, upload.Report.Messages[0].Message, "Packaged app too large for submission.")
		assert.Contains(t, upload.Report.Messages[0].Message, "Packages must be less than")
	})
	t.Run("policy rejections are persisted", func(t *testing.T) {
		fx := newFixture(t)
		blob := validBlob()
		blob.Type = "text/plain"
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: blob}, "a1")
		require.NoError(t, err)
		got, err := fx.GetStatus(ctx, upload.Id)
		require.NoError(t, err)
		assert.Equal(t, domain.UploadStateInvalid, got.State)
		assert.Zero(t, fx.insp.calls())
	})
	t.Run("rejected blob archive is deleted", func(t *testing.T) {
		fx := newFixture(t)
		fx.insp.report = domain.ValidationReport{
			Valid:    false,
			Messages: []domain.ReportMessage{{Tier: 1, Message: "Packaged app is not valid."}},
		}
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: validBlob()}, "a1")
		require.NoError(t, err)
		fx.store.assertHas(t, upload.Source.StoreKey)

		got := fx.waitProcessed(t, upload.Id)
		assert.Equal(t, domain.UploadStateInvalid, got.State)
		fx.store.assertMissing(t, upload.Source.StoreKey)
	})
	t.Run("valid blob stored and validated", func(t *testing.T) {
		fx := newFixture(t)
		fx.insp.report = domain.ValidationReport{Valid: true}
		upload, err := fx.Intake(ctx, IntakeRequest{Upload: validBlob()}, "a1")
		require.NoError(t, err)
		assert.Equal(t, "uploads/"+upload.Id, upload.Source.StoreKey)
		assert.Equal(t, domain.SourceBlob, upload.Source.Kind)
		fx.store.assertHas(t, upload.Source.StoreKey)

		got := fx.waitProcessed(t, upload.Id)
		assert.Equal(t, domain.UploadStateValid, got.State)
	})
}

func TestService_GetStatus(t *testing.T) {
	t.Run("unknown id", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.GetStatus(ctx, "missing")
		require.ErrorIs(t, err, apierrors.ErrNotFound)
	})
	t.Run("readable by anyone", func(t *testing.T) {
		fx := newFixture(t)
		upload, err := fx.Intake(ctx, IntakeRequest{Manifest: "http://foo.com/manifest.webapp"}, "a1")
		require.NoError(t, err)
		got, err := fx.GetStatus(ctx, upload.Id)
		require.NoError(t, err)
		assert.Equal(t, upload.Id, got.Id)
	})
}

func assertFieldError(t *testing.T, err error, field, message string) {
	t.Helper()
	var fieldErr *apierrors.ValidationError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, field, fieldErr.Field)
	assert.Equal(t, message, fieldErr.Message)
}

func assertRejected(t *testing.T, upload domain.Upload, message string) {
	t.Helper()
	assert.Equal(t, domain.UploadStateInvalid, upload.State)
	require.NotNil(t, upload.Report)
	assert.False(t, upload.Report.Valid)
	require.Len(t, upload.Report.Messages, 1)
	assert.Equal(t, 1, upload.Report.Messages[0].Tier)
	assert.Equal(t, message, upload.Report.Messages[0].Message)
}

func newFixture(t testing.TB) *fixture {
	fx := &fixture{
		Service: New(),
		insp:    &testInspector{report: domain.ValidationReport{Valid: true}},
		store:   newTestStore(),
		a:       new(app.App),
	}
	fx.a.Register(&testConfig{
		Mongo: db.Mongo{
			Connect:  "mongodb://localhost:27017",
			Database: "addons_unittest",
		},
		Uploads: Config{
			MaxPackageSize: 1024,
			Workers:        2,
		},
	}).
		Register(db.New()).
		Register(fx.store).
		Register(fx.insp).
		Register(uploadrepo.New()).
		Register(fx.Service)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		fx.finish(t)
	})
	return fx
}

type fixture struct {
	Service
	insp  *testInspector
	store *testStore
	a     *app.App
}

func (fx *fixture) waitProcessed(t testing.TB, id string) (upload domain.Upload) {
	t.Helper()
	require.Eventually(t, func() bool {
		got, err := fx.GetStatus(ctx, id)
		if err != nil {
			return false
		}
		upload = got
		return upload.Processed()
	}, 5*time.Second, 10*time.Millisecond)
	return
}

func (fx *fixture) finish(t testing.TB) {
	_ = fx.a.MustComponent(db.CName).(db.Database).Db().Collection("uploads").Drop(ctx)
	require.NoError(t, fx.a.Close(ctx))
}

type testConfig struct {
	Mongo   db.Mongo
	Uploads Config
}

func (t testConfig) Init(a *app.App) (err error) {
	return
}

func (t testConfig) Name() (name string) {
	return "config"
}

func (t testConfig) GetMongo() db.Mongo {
	return t.Mongo
}

func (t testConfig) GetUploads() Config {
	return t.Uploads
}

type testInspector struct {
	mu     sync.Mutex
	report domain.ValidationReport
	err    error
	n      int
}

func (i *testInspector) Init(a *app.App) (err error) { return }
func (i *testInspector) Name() string                { return inspector.CName }

func (i *testInspector) Inspect(ctx context.Context, source domain.UploadSource) (domain.ValidationReport, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.n++
	return i.report, i.err
}

func (i *testInspector) calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.n
}

type testStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newTestStore() *testStore {
	return &testStore{data: map[string][]byte{}}
}

func (s *testStore) Init(a *app.App) (err error) { return }
func (s *testStore) Name() string                { return store.CName }

func (s *testStore) Put(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
	return nil
}

func (s *testStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *testStore) DeletePath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.data {
		if strings.HasPrefix(key, path) {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *testStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

func (s *testStore) assertHas(t testing.TB, key string) {
	t.Helper()
	assert.True(t, s.has(key), "store missing key %s", key)
}

// assertMissing polls: the worker deletes the archive right after it
// stores the report.
func (s *testStore) assertMissing(t testing.TB, key string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return !s.has(key)
	}, 5*time.Second, 10*time.Millisecond)
}
