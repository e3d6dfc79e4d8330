package uploadrepo

import (
	"context"
	"testing"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SukhnandanMalhotra/addons-server/apierrors"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/domain"
)

var ctx = context.Background()

func newTestUpload(owner string) domain.Upload {
	return domain.Upload{
		Id:    uuid.New().String(),
		Owner: owner,
		Source: domain.UploadSource{
			Kind:        domain.SourceManifest,
			ManifestURL: "http://foo.com/manifest.webapp",
		},
		State:   domain.UploadStatePending,
		Created: time.Now().Unix(),
	}
}

func TestUploadRepo_CreateGet(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		got, err := fx.Get(ctx, upload.Id)
		require.NoError(t, err)
		assert.Equal(t, upload, got)
	})
	t.Run("unknown id", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.Get(ctx, "missing")
		require.ErrorIs(t, err, apierrors.ErrNotFound)
	})
}

func TestUploadRepo_SetReport(t *testing.T) {
	t.Run("writes report once", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		report := domain.ValidationReport{Valid: true}
		require.NoError(t, fx.SetReport(ctx, upload.Id, domain.UploadStateValid, report))
		got, err := fx.Get(ctx, upload.Id)
		require.NoError(t, err)
		assert.Equal(t, domain.UploadStateValid, got.State)
		require.NotNil(t, got.Report)
		assert.True(t, got.Report.Valid)
	})
	t.Run("second write rejected", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		require.NoError(t, fx.SetReport(ctx, upload.Id, domain.UploadStateInvalid, domain.ValidationReport{}))
		err := fx.SetReport(ctx, upload.Id, domain.UploadStateValid, domain.ValidationReport{Valid: true})
		require.ErrorIs(t, err, apierrors.ErrNotFound)
	})
}

func TestUploadRepo_MarkConsumed(t *testing.T) {
	t.Run("valid upload", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		require.NoError(t, fx.SetReport(ctx, upload.Id, domain.UploadStateValid, domain.ValidationReport{Valid: true}))
		require.NoError(t, fx.MarkConsumed(ctx, upload.Id))
		got, err := fx.Get(ctx, upload.Id)
		require.NoError(t, err)
		assert.True(t, got.Consumed)
	})
	t.Run("second consume rejected", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		require.NoError(t, fx.SetReport(ctx, upload.Id, domain.UploadStateValid, domain.ValidationReport{Valid: true}))
		require.NoError(t, fx.MarkConsumed(ctx, upload.Id))
		require.ErrorIs(t, fx.MarkConsumed(ctx, upload.Id), ErrNotConsumable)
	})
	t.Run("pending upload rejected", func(t *testing.T) {
		fx := newFixture(t)
		upload := newTestUpload("a1")
		require.NoError(t, fx.Create(ctx, upload))
		require.ErrorIs(t, fx.MarkConsumed(ctx, upload.Id), ErrNotConsumable)
	})
	t.Run("unknown id rejected", func(t *testing.T) {
		fx := newFixture(t)
		require.ErrorIs(t, fx.MarkConsumed(ctx, "missing"), ErrNotConsumable)
	})
}

func TestUploadRepo_ListPendingBefore(t *testing.T) {
	fx := newFixture(t)
	old := newTestUpload("a1")
	old.Created = time.Now().Unix() - 600
	fresh := newTestUpload("a1")
	done := newTestUpload("a1")
	done.Created = old.Created
	require.NoError(t, fx.Create(ctx, old))
	require.NoError(t, fx.Create(ctx, fresh))
	require.NoError(t, fx.Create(ctx, done))
	require.NoError(t, fx.SetReport(ctx, done.Id, domain.UploadStateValid, domain.ValidationReport{Valid: true}))

	ids, err := fx.ListPendingBefore(ctx, time.Now().Unix()-300)
	require.NoError(t, err)
	assert.Equal(t, []string{old.Id}, ids)
}

func newFixture(t testing.TB) *fixture {
	fx := &fixture{
		UploadRepo: New(),
		a:          new(app.App),
	}
	fx.a.Register(&testConfig{
		Mongo: db.Mongo{
			Connect:  "mongodb://localhost:27017",
			Database: "addons_unittest",
		},
	}).
		Register(db.New()).
		Register(fx.UploadRepo)
	require.NoError(t, fx.a.Start(ctx))
	t.Cleanup(func() {
		fx.finish(t)
	})
	return fx
}

type fixture struct {
	UploadRepo
	a *app.App
}

func (fx *fixture) finish(t testing.TB) {
	_ = fx.UploadRepo.(*uploadRepo).coll.Drop(ctx)
	require.NoError(t, fx.a.Close(ctx))
}

type testConfig struct {
	Mongo db.Mongo
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
