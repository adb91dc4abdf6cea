// Package config handles loading and validating the equipment status
// service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (EQUIPSTATUS_*)
//   - Validation of required fields
//   - Default value handling
//
// Sensitive values (database DSNs, broker passwords, tokens) should be set
// through environment variables rather than the file.
//
// Usage:
//
//	cfg, err := config.FromEnvironment()
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Storage.Driver)
package config
