// Package hooks delivers best-effort notifications to the accounting and
// search-index collaborators. Delivery failures are logged and never
// surface to the triggering request.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/redisprovider"
)

const CName = "hooks"

var log = logger.NewNamed(CName)

const indexChannel = "mkt.index"

const (
	EventAppCreated    = "app.created"
	EventStatusChanged = "app.status"
	EventAppDisabled   = "app.disabled"
)

type Event struct {
	Kind      string `json:"kind"`
	AppId     string `json:"appId"`
	Identity  string `json:"identity,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func New() Service {
	return new(service)
}

type Service interface {
	// Notify fires the event towards the external sinks and returns
	// immediately.
	Notify(event Event)
	app.Component
}

type service struct {
	redis redisprovider.RedisProvider
}

func (s *service) Name() (name string) {
	return CName
}

func (s *service) Init(a *app.App) (err error) {
	s.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider)
	return
}

func (s *service) Notify(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	go s.publish(event)
}

func (s *service) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal hook event", zap.Error(err))
		return
	}
	if err = s.redis.Redis().Publish(ctx, indexChannel, data).Err(); err != nil {
		log.Warn("hook delivery failed",
			zap.String("kind", event.Kind),
			zap.String("appId", event.AppId),
			zap.Error(err))
		return
	}
	log.Debug("hook delivered", zap.String("kind", event.Kind), zap.String("appId", event.AppId))
}
