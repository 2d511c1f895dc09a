// Package config loads FOTA Core settings from configs/config.yaml.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then FOTA_* environment variables (FOTA_MQTT_HOST, FOTA_REGISTRY_BACKEND,
// FOTA_JWT_SECRET, ...). Load validates the result and reports every
// problem at once.
//
// Keep broker passwords, the InfluxDB token and the JWT secret in the
// environment rather than in the file.
//
//	cfg, err := config.Load(os.Getenv("FOTA_CONFIG"))
//	if err != nil {
//	    return err
//	}
//	delay := cfg.AssetsDelay()
package config
