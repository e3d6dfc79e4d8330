// Package featured resolves which public webapps are promoted for a
// region: region-specific placements first, worldwide placements as
// backfill, never a placement matching neither.
package featured

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/domain"
	"github.com/SukhnandanMalhotra/addons-server/featured/featuredrepo"
	"github.com/SukhnandanMalhotra/addons-server/metrics"
	"github.com/SukhnandanMalhotra/addons-server/redisprovider"
	"github.com/SukhnandanMalhotra/addons-server/webapps/webapprepo"
)

const CName = "featured"

var log = logger.NewNamed(CName)

type Config struct {
	WorldwideRegion string `yaml:"worldwideRegion"`
	CacheTTLSeconds int    `yaml:"cacheTtlSeconds"`
}

func (c Config) worldwideRegion() string {
	if c.WorldwideRegion == "" {
		return "worldwide"
	}
	return c.WorldwideRegion
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTLSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type configGetter interface {
	GetFeatured() Config
}

func New() Service {
	return new(service)
}

type Service interface {
	// Resolve returns the ordered public webapps featured for the region,
	// optionally scoped to a category.
	Resolve(ctx context.Context, region, category string) ([]domain.Webapp, error)
	app.ComponentRunnable
}

type service struct {
	conf    Config
	repo    featuredrepo.FeaturedRepo
	webapps webapprepo.WebappRepo
	redis   redisprovider.RedisProvider
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.conf = a.MustComponent("config").(configGetter).GetFeatured()
	s.repo = a.MustComponent(featuredrepo.CName).(featuredrepo.FeaturedRepo)
	s.webapps = a.MustComponent(webapprepo.CName).(webapprepo.WebappRepo)
	s.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider)
	return
}

func (s *service) Run(ctx context.Context) (err error) {
	return
}

func (s *service) Resolve(ctx context.Context, region, category string) (result []domain.Webapp, err error) {
	region = strings.ToLower(region)
	if region == "" {
		region = s.conf.worldwideRegion()
	}

	if ids, ok := s.cacheGet(ctx, region, category); ok {
		metrics.FeaturedCacheTotal.WithLabelValues("hit").Inc()
		return s.loadPublic(ctx, ids)
	}
	metrics.FeaturedCacheTotal.WithLabelValues("miss").Inc()

	ids, err := s.candidateIds(ctx, region, category)
	if err != nil {
		return
	}
	if result, err = s.loadPublic(ctx, ids); err != nil {
		return
	}
	s.cacheSet(ctx, region, category, ids)
	return
}

// candidateIds runs the two sequential placement queries: the exact
// region first, then the worldwide backfill. An app placed both ways is
// kept in its region-specific position.
func (s *service) candidateIds(ctx context.Context, region, category string) (ids []string, err error) {
	placements, err := s.repo.ListByRegion(ctx, region, category)
	if err != nil {
		return
	}
	if region != s.conf.worldwideRegion() {
		worldwide, err := s.repo.ListByRegion(ctx, s.conf.worldwideRegion(), category)
		if err != nil {
			return nil, err
		}
		placements = append(placements, worldwide...)
	}

	seen := make(map[string]struct{}, len(placements))
	for _, placement := range placements {
		if _, ok := seen[placement.AppId]; ok {
			continue
		}
		seen[placement.AppId] = struct{}{}
		ids = append(ids, placement.AppId)
	}
	return
}

// loadPublic fetches the candidate apps and keeps the publicly visible
// ones, preserving candidate order.
func (s *service) loadPublic(ctx context.Context, ids []string) (result []domain.Webapp, err error) {
	apps, err := s.webapps.GetByIds(ctx, ids)
	if err != nil {
		return
	}
	byId := make(map[string]domain.Webapp, len(apps))
	for _, wa := range apps {
		byId[wa.Id] = wa
	}
	result = make([]domain.Webapp, 0, len(ids))
	for _, id := range ids {
		wa, ok := byId[id]
		if !ok || wa.EffectiveStatus() != domain.StatusPublic {
			continue
		}
		result = append(result, wa)
	}
	return
}

func cacheKey(region, category string) string {
	return "featured:" + region + ":" + category
}

func (s *service) cacheGet(ctx context.Context, region, category string) (ids []string, ok bool) {
	data, err := s.redis.Redis().Get(ctx, cacheKey(region, category)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn("featured cache read failed", zap.Error(err))
		}
		return nil, false
	}
	if err = json.Unmarshal(data, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

func (s *service) cacheSet(ctx context.Context, region, category string, ids []string) {
	data, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err = s.redis.Redis().Set(ctx, cacheKey(region, category), data, s.conf.cacheTTL()).Err(); err != nil {
		log.Warn("featured cache write failed", zap.Error(err))
	}
}

func (s *service) Close(ctx context.Context) (err error) {
	return
}
