package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"go.uber.org/zap"

	"github.com/SukhnandanMalhotra/addons-server/accounts"
	"github.com/SukhnandanMalhotra/addons-server/config"
	"github.com/SukhnandanMalhotra/addons-server/db"
	"github.com/SukhnandanMalhotra/addons-server/featured"
	"github.com/SukhnandanMalhotra/addons-server/featured/featuredrepo"
	"github.com/SukhnandanMalhotra/addons-server/gateway"
	"github.com/SukhnandanMalhotra/addons-server/hooks"
	"github.com/SukhnandanMalhotra/addons-server/inspector"
	"github.com/SukhnandanMalhotra/addons-server/redisprovider"
	"github.com/SukhnandanMalhotra/addons-server/store"
	"github.com/SukhnandanMalhotra/addons-server/uploads"
	"github.com/SukhnandanMalhotra/addons-server/uploads/uploadrepo"
	"github.com/SukhnandanMalhotra/addons-server/webapps"
	"github.com/SukhnandanMalhotra/addons-server/webapps/webapprepo"
)

var log = logger.NewNamed("main")

var flagConfigFile = flag.String("c", "etc/config.yml", "path to config file")

func main() {
	flag.Parse()

	conf, err := config.NewFromFile(*flagConfigFile)
	if err != nil {
		log.Fatal("can't open config file", zap.Error(err))
	}

	a := new(app.App)
	a.Register(conf).
		Register(db.New()).
		Register(redisprovider.New()).
		Register(store.New()).
		Register(inspector.New()).
		Register(uploadrepo.New()).
		Register(uploads.New()).
		Register(accounts.New()).
		Register(hooks.New()).
		Register(webapprepo.New()).
		Register(webapps.New()).
		Register(featuredrepo.New()).
		Register(featured.New()).
		Register(gateway.New())

	ctx := context.Background()
	if err = a.Start(ctx); err != nil {
		log.Fatal("can't start app", zap.Error(err))
	}
	log.Info("app started", zap.String("config", *flagConfigFile))

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
	sig := <-exit
	log.Info("stopping app", zap.String("signal", sig.String()))

	if err = a.Close(ctx); err != nil {
		log.Fatal("close error", zap.Error(err))
	}
	log.Info("app stopped")
}
