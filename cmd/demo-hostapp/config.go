package main

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "SITEAUTH_"

// Config is the demo host app's configuration. It is loaded from a YAML
// file and then overridden by SITEAUTH_* environment variables, where a
// double underscore separates nesting levels (SITEAUTH_AUTH__SECRET sets
// auth.secret).
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr" validate:"required"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Log struct {
		Format string `yaml:"format" validate:"oneof=json text"`
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	} `yaml:"log"`

	Auth struct {
		BaseURL       string        `yaml:"baseUrl" validate:"required,url"`
		BasePath      string        `yaml:"basePath" validate:"omitempty,startswith=/"`
		Secret        string        `yaml:"secret" validate:"required,min=16"`
		SessionMode   string        `yaml:"sessionMode" validate:"omitempty,oneof=jwt database"`
		SessionMaxAge time.Duration `yaml:"sessionMaxAge" validate:"gte=0"`
		SweepInterval time.Duration `yaml:"sweepInterval" validate:"gte=0"`
	} `yaml:"auth"`

	Store struct {
		Driver    string `yaml:"driver" validate:"oneof=fs postgres gorm datastore"`
		Path      string `yaml:"path" validate:"required_if=Driver fs"`
		DSN       string `yaml:"dsn" validate:"required_if=Driver postgres,required_if=Driver gorm"`
		ProjectID string `yaml:"projectId" validate:"required_if=Driver datastore"`
		Namespace string `yaml:"namespace"`
	} `yaml:"store"`

	Providers struct {
		Google      *OAuthConfig `yaml:"google"`
		GitHub      *OAuthConfig `yaml:"github"`
		Discord     *OAuthConfig `yaml:"discord"`
		Email       bool         `yaml:"email"`
		Credentials []DemoUser   `yaml:"credentials" validate:"dive"`
	} `yaml:"providers"`
}

// OAuthConfig enables an OAuth provider. Empty credentials fall back to the
// OAUTH2_<PROVIDER>_CLIENT_ID and OAUTH2_<PROVIDER>_CLIENT_SECRET variables.
type OAuthConfig struct {
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
}

// DemoUser is accepted by the credentials provider. Passwords are bcrypt
// hashed when the provider is built.
type DemoUser struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required,min=8"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email" validate:"omitempty,email"`
}

func defaultConfig() map[string]any {
	return map[string]any{
		"server.addr":        ":8080",
		"log.format":         "text",
		"log.level":          "info",
		"auth.baseUrl":       "http://localhost:8080",
		"auth.sweepInterval": "1h",
		"store.driver":       "fs",
		"store.path":         "./data/auth",
	}
}

// normalizeKey lower-cases a config path and drops underscores
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "_", "")
}

// envKey maps SITEAUTH_AUTH__BASE_URL style names to config paths, reusing
// the spelling of a key that is already loaded so the override replaces it.
func envKey(k string, existing map[string]string) string {
	k = strings.TrimPrefix(k, envPrefix)
	key := normalizeKey(strings.ReplaceAll(k, "__", "."))
	if known, ok := existing[key]; ok {
		return known
	}
	return key
}

// LoadConfig reads path (if it exists), applies environment overrides and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaultConfig() {
		if err := k.Set(key, value); err != nil {
			return nil, errors.Wrapf(err, "set default %s", key)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat config %s", path)
		}
	}

	existing := map[string]string{}
	for _, key := range k.Keys() {
		existing[normalizeKey(key)] = key
	}
	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			return envKey(k, existing), v
		},
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "load env variables")
	}

	cfg := new(Config)
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			TagName:          "yaml",
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}
