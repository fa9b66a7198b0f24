package main

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"reflect"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/osbuild/osbuild-bootdisk/internal/iso"
)

const DefaultConfigPath = "/etc/osbuild-bootdisk/osbuild-bootdisk.toml"

// Do not write this config to logs or stdout, it contains secrets!
type BootdiskConfigFile struct {
	// ServerURL is the provisioning server generic images chain to.
	ServerURL string `toml:"server_url" env:"BOOTDISK_SERVER_URL"`
	// AllowedTypes lists the image types offered for download.
	AllowedTypes []string `toml:"allowed_types"`
	// SupportedArchitectures holds glob patterns of host architectures host
	// images are offered for.
	SupportedArchitectures []string `toml:"supported_architectures"`
	// TokenDuration is the lifetime of full host tokens in minutes.
	TokenDuration int    `toml:"token_duration"`
	KeyFile       string `toml:"key_file" env:"BOOTDISK_KEY_FILE"`
	TemplateDir   string `toml:"template_dir"`
	TmpDir        string `toml:"tmp_dir" env:"BOOTDISK_TMPDIR"`
	LogLevel      string `toml:"log_level" env:"BOOTDISK_LOG_LEVEL"`
	// Channel tags log entries with the deployment, e.g. production.
	Channel    string `toml:"channel" env:"CHANNEL"`
	LogJournal bool   `toml:"log_journal"`

	Loader    LoaderConfig        `toml:"loader"`
	API       APIConfig           `toml:"api"`
	Metrics   MetricsConfig       `toml:"metrics"`
	Inventory InventoryConfig     `toml:"inventory"`
	Sentry    SentryConfig        `toml:"sentry"`
	ACL       map[string][]string `toml:"acl"`
}

type LoaderConfig struct {
	Version   string `toml:"version"`
	BootImage string `toml:"boot_image"`
	LDLinux   string `toml:"ldlinux"`
	IPXE      string `toml:"ipxe"`
}

type APIConfig struct {
	Listen string `toml:"listen" env:"BOOTDISK_LISTEN"`
	// When CA is set, the API is served over TLS and client certificates
	// signed by it identify the client.
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

type MetricsConfig struct {
	// Listen enables a separate prometheus endpoint when set.
	Listen string `toml:"listen" env:"BOOTDISK_METRICS_LISTEN"`
}

type InventoryConfig struct {
	Dir        string `toml:"dir"`
	PGHost     string `toml:"pg_host" env:"PGHOST"`
	PGPort     string `toml:"pg_port" env:"PGPORT"`
	PGDatabase string `toml:"pg_database" env:"PGDATABASE"`
	PGUser     string `toml:"pg_user" env:"PGUSER"`
	PGPassword string `toml:"pg_password" env:"PGPASSWORD"`
	PGSSLMode  string `toml:"pg_ssl_mode" env:"PGSSLMODE"`
}

type SentryConfig struct {
	DSN         string `toml:"dsn" env:"SENTRY_DSN"`
	Environment string `toml:"environment" env:"SENTRY_ENVIRONMENT"`
}

func GetDefaultConfig() *BootdiskConfigFile {
	paths := iso.DefaultLoaderPaths()
	return &BootdiskConfigFile{
		AllowedTypes:           []string{"generic", "host", "full_host", "subnet"},
		SupportedArchitectures: []string{"x86_64", "i?86"},
		TokenDuration:          360,
		LogLevel:               "info",
		Loader: LoaderConfig{
			BootImage: paths.BootImage,
			LDLinux:   paths.LDLinux,
			IPXE:      paths.IPXE,
		},
		API: APIConfig{
			Listen: ":8080",
		},
		Inventory: InventoryConfig{
			Dir:       "/var/lib/osbuild-bootdisk/hosts",
			PGPort:    "5432",
			PGSSLMode: "prefer",
		},
	}
}

// LoadConfig reads name over the defaults and applies the environment on
// top.
func LoadConfig(name string) (*BootdiskConfigFile, error) {
	c := GetDefaultConfig()
	_, err := toml.DecodeFile(name, c)
	if err != nil {
		return nil, err
	}
	err = loadConfigFromEnv(c)
	if err != nil {
		return nil, err
	}
	if c.TokenDuration <= 0 {
		return nil, fmt.Errorf("token_duration must be positive, got %d", c.TokenDuration)
	}
	return c, nil
}

func DumpConfig(c *BootdiskConfigFile, w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// loadConfigFromEnv overrides string fields carrying an env tag with the
// value of that variable, if set. Nested structs are walked.
func loadConfigFromEnv(intf interface{}) error {
	t := reflect.TypeOf(intf).Elem()
	v := reflect.ValueOf(intf).Elem()

	for i := 0; i < v.NumField(); i++ {
		fieldT := t.Field(i)
		fieldV := v.Field(i)
		kind := fieldV.Kind()

		if kind == reflect.Struct {
			if err := loadConfigFromEnv(fieldV.Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key, ok := fieldT.Tag.Lookup("env")
		if !ok {
			continue
		}
		confV, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		switch kind {
		case reflect.String:
			fieldV.SetString(confV)
		default:
			return fmt.Errorf("unsupported type for %s", key)
		}
	}
	return nil
}

func (c *BootdiskConfigFile) tokenTTL() time.Duration {
	return time.Duration(c.TokenDuration) * time.Minute
}

func (c *BootdiskConfigFile) loaderPaths() iso.LoaderPaths {
	return iso.LoaderPaths{
		Version:   c.Loader.Version,
		BootImage: c.Loader.BootImage,
		LDLinux:   c.Loader.LDLinux,
		IPXE:      c.Loader.IPXE,
	}
}

func (c *InventoryConfig) dbURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PGUser, c.PGPassword),
		Host:     net.JoinHostPort(c.PGHost, c.PGPort),
		Path:     "/" + c.PGDatabase,
		RawQuery: url.Values{"sslmode": {c.PGSSLMode}}.Encode(),
	}
	return u.String()
}
