// Package config defines configuration structures for the dvfload CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (DVFLOAD_ prefix, plus POSTGRES_* for the store)
//   - YAML configuration file
//
// Precedence, lowest to highest: defaults, file, environment, flags.
//
// # Structure
//
//	type Config struct {
//	    URLTemplate string
//	    StartYear   int
//	    EndYear     int
//	    Years       []int
//	    BatchSize   int
//	    ByteRate    int64
//	    MetricsAddr string
//	    Progress    bool
//	    Force       bool
//	    Store       StoreConfig
//	    Retry       RetryConfig
//	}
package config
