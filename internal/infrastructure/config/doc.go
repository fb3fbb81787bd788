// Package config handles loading and validating Gray Logic Gate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYGATE_* environment variables
//   - Validation of required fields and actuator transport settings
//
// Security Considerations:
//   - The JWT secret and broker credentials belong in the environment, not the file
//   - The config file should have restricted permissions (0600)
//   - A JWT secret shorter than 32 characters is rejected
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Actuator.Transport)
package config
