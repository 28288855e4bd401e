package config

import (
	"fmt"
	"io/ioutil"
	"net/url"
	"strings"
	"time"

	"talentbook-middleware/models"

	"github.com/FusionAuth/go-client/pkg/fusionauth"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigFile     = "config.yml"
	DefaultCookieName     = "tb_jwt"
	DefaultFunctionPath   = "/functions/v1/stripe-checkout"
	DefaultInitialDelay   = 2 * time.Second
	DefaultMaxAttempts    = 5
	DefaultMaxElapsed     = 20 * time.Second
	DefaultRefreshSeconds = 3
)

type Config struct {
	Global       Global `yaml:"global"`
	Applications []App  `yaml:"applications"`
}

type Global struct {
	BindAddr    string   `yaml:"bindAddr"`
	BindPort    int      `yaml:"bindPort"`
	Development bool     `yaml:"development"`
	Postgres    Postgres `yaml:"postgres"`
	Redis       Redis    `yaml:"redis"`
}

type Postgres struct {
	User    string `yaml:"user"`
	Pass    string `yaml:"pass"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	DBName  string `yaml:"dbName"`
	Options string `yaml:"options"`
}

// ConnString builds a pgx connection url.
func (p Postgres) ConnString() string {
	return fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?%v",
		url.QueryEscape(p.User),
		url.QueryEscape(p.Pass),
		p.Host,
		p.Port,
		p.DBName,
		p.Options,
	)
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWT struct {
	CookieName          string `yaml:"cookieName"`
	CookieMaxAgeSeconds int    `yaml:"cookieMaxAgeSeconds"`
	CookieDomain        string `yaml:"cookieDomain"`
	CookieSetSecure     bool   `yaml:"cookieSetSecure"`
}

// Checkout holds the timings of the confirmation poller and the location of
// the checkout-session function.
type Checkout struct {
	FunctionURL        string        `yaml:"functionUrl"`
	InitialDelay       time.Duration `yaml:"initialDelay"`
	MaxAttempts        int           `yaml:"maxAttempts"`
	MaxElapsed         time.Duration `yaml:"maxElapsed"`
	PageRefreshSeconds int           `yaml:"pageRefreshSeconds"`
}

type App struct {
	Domain        string `yaml:"domain"`
	FullDomainURL string `yaml:"fullDomainUrl"`

	FusionAuthAppID             string `yaml:"fusionAuthAppId"`
	FusionAuthTenantID          string `yaml:"fusionAuthTenantId"`
	FusionAuthHost              string `yaml:"fusionAuthHost"`
	FusionAuthPublicHost        string `yaml:"fusionAuthPublicHost"`
	FusionAuthAPIKey            string `yaml:"fusionAuthApiKey"`
	FusionAuthOauthClientID     string `yaml:"fusionAuthOauthClientId"`
	FusionAuthOauthClientSecret string `yaml:"fusionAuthOauthClientSecret"`
	AuthCallbackRedirectURL     string `yaml:"authCallbackRedirectUrl"`

	JWT JWT `yaml:"jwt"`

	StripeSecretKey     string `yaml:"stripeSecretKey"`
	StripeWebhookSecret string `yaml:"stripeWebhookSecret"`

	Checkout Checkout `yaml:"checkout"`

	// populated at startup
	FusionAuthClient *fusionauth.FusionAuthClient `yaml:"-"`
	OauthConfig      *oauth2.Config               `yaml:"-"`
}

// SuccessURL is the default return url handed to Stripe; the placeholder is
// replaced by Stripe with the checkout session id.
func (a App) SuccessURL() string {
	return a.FullDomainURL + "/checkout/success?session_id=" + models.CheckoutSessionPlaceholder
}

func (a App) CancelURL() string {
	return a.FullDomainURL + "/checkout/cancel"
}

// LoadConfigYaml reads the yaml config file at path and fills in defaults.
func LoadConfigYaml(path string) (Config, error) {
	conf := Config{}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("failed to read config file %v: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &conf); err != nil {
		return conf, fmt.Errorf("failed to parse config file %v: %w", path, err)
	}
	if len(conf.Applications) == 0 {
		return conf, fmt.Errorf("config file %v defines no applications", path)
	}
	conf.applyDefaults()
	return conf, nil
}

// LoadConfig loads the yaml file named by TB_CONFIG (default config.yml) and
// layers TB_* environment overrides on top, so secrets don't need to live
// in the file.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("tb")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("config", DefaultConfigFile)

	conf, err := LoadConfigYaml(v.GetString("config"))
	if err != nil {
		return conf, err
	}

	if s := v.GetString("bind.addr"); s != "" {
		conf.Global.BindAddr = s
	}
	if v.IsSet("bind.port") {
		conf.Global.BindPort = v.GetInt("bind.port")
	}
	if s := v.GetString("postgres.pass"); s != "" {
		conf.Global.Postgres.Pass = s
	}
	if s := v.GetString("redis.password"); s != "" {
		conf.Global.Redis.Password = s
	}
	for i := range conf.Applications {
		if s := v.GetString("stripe.secret.key"); s != "" {
			conf.Applications[i].StripeSecretKey = s
		}
		if s := v.GetString("stripe.webhook.secret"); s != "" {
			conf.Applications[i].StripeWebhookSecret = s
		}
		if s := v.GetString("fusionauth.api.key"); s != "" {
			conf.Applications[i].FusionAuthAPIKey = s
		}
	}
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.Global.BindPort == 0 {
		c.Global.BindPort = 8080
	}
	for i := range c.Applications {
		app := &c.Applications[i]
		app.FullDomainURL = strings.TrimRight(app.FullDomainURL, "/")
		if app.Domain == "" {
			if u, err := url.Parse(app.FullDomainURL); err == nil {
				app.Domain = u.Host
			}
		}
		if app.JWT.CookieName == "" {
			app.JWT.CookieName = DefaultCookieName
		}
		if app.Checkout.FunctionURL == "" {
			app.Checkout.FunctionURL = app.FullDomainURL + DefaultFunctionPath
		}
		if app.Checkout.InitialDelay == 0 {
			app.Checkout.InitialDelay = DefaultInitialDelay
		}
		if app.Checkout.MaxAttempts == 0 {
			app.Checkout.MaxAttempts = DefaultMaxAttempts
		}
		if app.Checkout.MaxElapsed == 0 {
			app.Checkout.MaxElapsed = DefaultMaxElapsed
		}
		if app.Checkout.PageRefreshSeconds == 0 {
			app.Checkout.PageRefreshSeconds = DefaultRefreshSeconds
		}
	}
}

// GetAppByOrigin finds the application whose domain matches host.
func (c Config) GetAppByOrigin(host string) (App, bool) {
	for _, app := range c.Applications {
		if strings.EqualFold(app.Domain, host) {
			return app, true
		}
	}
	return App{}, false
}

// GetConfigForOrigin accepts a full Origin or Referer header value.
func (c Config) GetConfigForOrigin(origin string) (App, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return App{}, false
	}
	return c.GetAppByOrigin(u.Host)
}

func (c Config) GetConfigForAppID(appID string) (App, bool) {
	for _, app := range c.Applications {
		if app.FusionAuthAppID == appID {
			return app, true
		}
	}
	return App{}, false
}
