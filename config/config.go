package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	sdkutil "github.com/TBD54566975/ssi-sdk/util"
	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-holder/pkg/storage"
)

const (
	DefaultConfigPath = "config/config.toml"
	ConfigFileName    = "config.toml"
	ConfigExtension   = ".toml"
	DefaultEnvFile    = ".env"

	// ConfigPath names the environment variable that overrides DefaultConfigPath.
	ConfigPath EnvironmentVariable = "CONFIG_PATH"
)

type EnvironmentVariable string

func (e EnvironmentVariable) String() string {
	return string(e)
}

type HolderConfig struct {
	conf.Version
	// RequestURL is the authorization request to answer, e.g. openid4vp://?request_uri=...
	RequestURL string           `toml:"request_url"`
	Client     ClientConfig     `toml:"client"`
	Storage    StorageConfig    `toml:"storage"`
	Resolution ResolutionConfig `toml:"resolution"`
	Trust      TrustConfig      `toml:"trust"`
}

// ClientConfig represents configurable properties of the wallet's HTTP client, logging and tracing
type ClientConfig struct {
	Timeout      time.Duration `toml:"timeout" conf:"default:30s"`
	CAFile       string        `toml:"ca_file"`
	CertFile     string        `toml:"cert_file"`
	KeyFile      string        `toml:"key_file"`
	JagerHost    string        `toml:"jager_host" conf:"default:http://jaeger:14268/api/traces"`
	JagerEnabled bool          `toml:"jager_enabled" conf:"default:false"`
	LogLocation  string        `toml:"log_location"`
	LogLevel     string        `toml:"log_level" conf:"default:info"`
	// HolderKeyFile holds a private JWK used for key binding and signed responses.
	HolderKeyFile string `toml:"holder_key_file"`
	HolderDID     string `toml:"holder_did"`
	// HolderKeyID is the key's verification method id, the holder DID when empty.
	HolderKeyID string `toml:"holder_key_id"`
}

// StorageConfig selects where credentials are kept
type StorageConfig struct {
	Provider      string `toml:"provider" conf:"default:bolt" validate:"oneof=bolt redis memory"`
	BoltFile      string `toml:"bolt_file"`
	RedisAddress  string `toml:"redis_address"`
	RedisPassword string `toml:"redis_password" conf:"mask"`
	RedisDB       int    `toml:"redis_db"`
	// Password encrypts credentials at rest when set. The password is salted before usage.
	Password string `toml:"password" conf:"mask"`
	// Import lists files holding one credential each, stored before the request is processed.
	Import []string `toml:"import"`
	// Remove lists credential ids deleted before importing.
	Remove []string `toml:"remove"`
	// Reset deletes every stored credential before importing.
	Reset bool `toml:"reset" conf:"default:false"`
	// List logs the stored credentials once imports are done.
	List bool `toml:"list" conf:"default:false"`
}

type ResolutionConfig struct {
	Methods              []string      `toml:"methods" conf:"default:key;web;pkh;peer"`
	UniversalResolverURL string        `toml:"universal_resolver_url"`
	CacheTTL             time.Duration `toml:"cache_ttl" conf:"default:5m"`
}

type TrustConfig struct {
	TrustedDIDs []string `toml:"trusted_dids"`
	ServiceURL  string   `toml:"service_url" validate:"omitempty,url"`
}

// Options translates the storage configuration into provider options.
func (s StorageConfig) Options() []storage.Option {
	var opts []storage.Option
	switch storage.Type(s.Provider) {
	case storage.Bolt:
		if s.BoltFile != "" {
			opts = append(opts, storage.Option{ID: storage.BoltDBFilePathOption, Option: s.BoltFile})
		}
	case storage.Redis:
		opts = append(opts,
			storage.Option{ID: storage.RedisAddressOption, Option: s.RedisAddress},
			storage.Option{ID: storage.PasswordOption, Option: s.RedisPassword},
			storage.Option{ID: storage.RedisDBOption, Option: s.RedisDB},
		)
	}
	return opts
}

// Validate checks the struct tags and the combinations they cannot express.
func (c *HolderConfig) Validate() error {
	if err := sdkutil.IsValidStruct(*c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if storage.Type(c.Storage.Provider) == storage.Redis && c.Storage.RedisAddress == "" {
		return errors.New("redis storage requires redis_address")
	}
	if (c.Client.CertFile == "") != (c.Client.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	return nil
}

// LoadConfig attempts to load a TOML config file from the given path, and coerce it into our object model.
// Before loading, defaults are applied on certain properties, which are overwritten if specified in the TOML file.
// args are command line flags, environment variables are read from the process and an optional .env file.
func LoadConfig(path string, args []string) (*HolderConfig, error) {
	// no path, load default config
	defaultConfig := false
	if path == "" {
		logrus.Info("no config path provided, loading default config...")
		defaultConfig = true
	} else if filepath.Ext(path) != ConfigExtension {
		return nil, fmt.Errorf("path<%s> did not match the expected TOML format", path)
	}

	if err := godotenv.Load(DefaultEnvFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "loading %s", DefaultEnvFile)
	}

	var config HolderConfig

	// parse and apply defaults
	if err := conf.Parse(args, ServiceName, &config); err != nil {
		switch {
		case errors.Is(err, conf.ErrHelpWanted):
			usage, err := conf.Usage(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "parsing config")
			}
			fmt.Println(usage)

			return nil, nil

		case errors.Is(err, conf.ErrVersionWanted):
			version, err := conf.VersionString(ServiceName, &config)
			if err != nil {
				return nil, errors.Wrap(err, "generating config version")
			}

			fmt.Println(version)
			return nil, nil
		}

		return nil, errors.Wrap(err, "parsing config")
	}

	if !defaultConfig {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, errors.Wrapf(err, "could not load config: %s", path)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}
