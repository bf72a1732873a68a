// Package config loads and validates the service configuration.
//
// Configuration comes from a YAML file, with environment variables
// layered on top for secrets and deployment overrides:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Relay.Addr())
//
// Load fills defaults first, applies the file, then the environment, and
// finally validates. Validation is strict about the values that brick a
// deployment quietly: a short relay key, a missing JWT secret, an
// unlock duration of zero.
//
// # Secrets
//
// The relay key and JWT secret belong in LATCH_RELAY_KEY and
// LATCH_JWT_SECRET rather than on disk. When they must live in the
// file, keep it at 0600.
package config
