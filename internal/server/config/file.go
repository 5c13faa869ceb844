package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophaccounts/internal/flagx"
	"github.com/dmitrijs2005/gophaccounts/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Pointer fields let
// a file override only the keys it actually sets.
type FileConfig struct {
	EndpointAddrHTTP *string `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC *string `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN      *string `json:"database_dsn" yaml:"database_dsn"`
	SecretKey        *string `json:"secret_key" yaml:"secret_key"`
	LogLevel         *string `json:"log_level" yaml:"log_level"`

	RegistrationOpen        *bool           `json:"registration_open" yaml:"registration_open"`
	EmailVerification       *string         `json:"email_verification" yaml:"email_verification"`
	AuthenticationMethod    *string         `json:"authentication_method" yaml:"authentication_method"`
	EmailRequired           *bool           `json:"email_required" yaml:"email_required"`
	UsernameRequired        *bool           `json:"username_required" yaml:"username_required"`
	UniqueEmail             *bool           `json:"unique_email" yaml:"unique_email"`
	OldPasswordFieldEnabled *bool           `json:"old_password_field_enabled" yaml:"old_password_field_enabled"`
	LogoutOnPasswordChange  *bool           `json:"logout_on_password_change" yaml:"logout_on_password_change"`
	EmailConfirmationExpiry *timex.Duration `json:"email_confirmation_expiry" yaml:"email_confirmation_expiry"`
	PasswordResetTimeout    *timex.Duration `json:"password_reset_timeout" yaml:"password_reset_timeout"`

	SiteURL     *string `json:"site_url" yaml:"site_url"`
	MailBackend *string `json:"mail_backend" yaml:"mail_backend"`
	MailFrom    *string `json:"mail_from" yaml:"mail_from"`

	S3RootUser     *string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       *string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`

	RedisDSN       *string `json:"redis_dsn" yaml:"redis_dsn"`
	LoginRateLimit *int    `json:"login_rate_limit" yaml:"login_rate_limit"`
}

// parseFile overlays the file named by -c/-config, if any. It panics when the
// file cannot be loaded.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}
	if err := LoadFile(config, path); err != nil {
		panic(err)
	}
}

// LoadFile reads a .json, .yaml or .yml file and applies the keys it sets.
func LoadFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	case ".json":
		err = json.Unmarshal(data, fc)
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	setString(&c.LogLevel, fc.LogLevel)

	setBool(&c.RegistrationOpen, fc.RegistrationOpen)
	setString(&c.EmailVerification, fc.EmailVerification)
	setString(&c.AuthenticationMethod, fc.AuthenticationMethod)
	setBool(&c.EmailRequired, fc.EmailRequired)
	setBool(&c.UsernameRequired, fc.UsernameRequired)
	setBool(&c.UniqueEmail, fc.UniqueEmail)
	setBool(&c.OldPasswordFieldEnabled, fc.OldPasswordFieldEnabled)
	setBool(&c.LogoutOnPasswordChange, fc.LogoutOnPasswordChange)
	if fc.EmailConfirmationExpiry != nil {
		c.EmailConfirmationExpiry = fc.EmailConfirmationExpiry.Duration
	}
	if fc.PasswordResetTimeout != nil {
		c.PasswordResetTimeout = fc.PasswordResetTimeout.Duration
	}

	setString(&c.SiteURL, fc.SiteURL)
	setString(&c.MailBackend, fc.MailBackend)
	setString(&c.MailFrom, fc.MailFrom)

	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)

	setString(&c.RedisDSN, fc.RedisDSN)
	if fc.LoginRateLimit != nil {
		c.LoginRateLimit = *fc.LoginRateLimit
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
