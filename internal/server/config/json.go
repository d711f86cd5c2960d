package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/worldkeeper/internal/flagx"
	"github.com/dmitrijs2005/worldkeeper/internal/timex"
)

// JsonConfig mirrors Config for JSON unmarshalling. Interval fields use
// timex.Duration so both "1h" strings and integer nanoseconds parse. Empty
// fields are skipped during merge so a partial file only overrides what it
// names.
type JsonConfig struct {
	EndpointAddrGRPC       string         `json:"endpoint_addr_grpc"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	TokenValidityDuration  timex.Duration `json:"token_validity_duration"`
	ProvisionerTimeout     timex.Duration `json:"provisioner_timeout"`
	BootstrapAdminUsername string         `json:"bootstrap_admin_username"`
	BootstrapAdminPassword string         `json:"bootstrap_admin_password"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	ArchivePrefix          string         `json:"archive_prefix"`
	ComputeRegion          string         `json:"compute_region"`
	ComputeLaunchTemplate  string         `json:"compute_launch_template"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into config. If no flag is given, nothing is loaded.
// An unreadable or invalid file panics: a half-applied config file is
// worse than a refused start.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIfNotEmpty(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIfNotEmpty(&config.DatabaseDSN, c.DatabaseDSN)
	setIfNotEmpty(&config.SecretKey, c.SecretKey)
	setIfNotEmpty(&config.BootstrapAdminUsername, c.BootstrapAdminUsername)
	setIfNotEmpty(&config.BootstrapAdminPassword, c.BootstrapAdminPassword)
	setIfNotEmpty(&config.S3RootUser, c.S3RootUser)
	setIfNotEmpty(&config.S3RootPassword, c.S3RootPassword)
	setIfNotEmpty(&config.S3Bucket, c.S3Bucket)
	setIfNotEmpty(&config.S3Region, c.S3Region)
	setIfNotEmpty(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setIfNotEmpty(&config.ArchivePrefix, c.ArchivePrefix)
	setIfNotEmpty(&config.ComputeRegion, c.ComputeRegion)
	setIfNotEmpty(&config.ComputeLaunchTemplate, c.ComputeLaunchTemplate)

	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = time.Duration(c.TokenValidityDuration.Duration)
	}
	if c.ProvisionerTimeout.Duration != 0 {
		config.ProvisionerTimeout = time.Duration(c.ProvisionerTimeout.Duration)
	}
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
