package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"talentbook-middleware/auth"
	"talentbook-middleware/config"
	"talentbook-middleware/routes"
	"talentbook-middleware/userdata"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// load config
	conf, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err.Error()))
	}

	logger, err := newLogger(conf.Global.Development)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err.Error()))
	}
	defer func() { _ = logger.Sync() }()

	for i, app := range conf.Applications {
		faURL, err := url.Parse(app.FusionAuthHost)
		if err != nil {
			logger.Fatal("failed to parse fusionauth url", zap.String("appId", app.FusionAuthAppID), zap.Error(err))
		}

		// http client with custom options for usage with fusionauth
		hc := &http.Client{
			Timeout: time.Second * 10,
		}

		// get the fusionauth client
		conf.Applications[i].FusionAuthClient = fusionauth.NewClient(
			hc,
			faURL,
			app.FusionAuthAPIKey,
		)

		// build out the oauth2 config
		conf.Applications[i].OauthConfig = auth.NewOauthConfig(app)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := userdata.Connect(ctx, conf.Global.Postgres.ConnString())
	if err != nil {
		cancel()
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer store.Close()
	err = store.Migrate(ctx)
	cancel()
	if err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	states := auth.NewRedisStateStore(conf.Global.Redis)
	defer states.Client.Close()

	srv := routes.NewServer(conf, store, states, auth.NewNotifier(), logger)
	defer srv.Close()

	if !conf.Global.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// start up the api server
	r := gin.Default()
	srv.Register(r)

	addr := fmt.Sprintf("%v:%v", conf.Global.BindAddr, conf.Global.BindPort)
	logger.Info("listening", zap.String("addr", addr), zap.Int("applications", len(conf.Applications)))
	if err := r.Run(addr); err != nil {
		logger.Fatal("error running gin", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
