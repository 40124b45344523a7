// Package config provides environment-based configuration.
//
// Values come from environment variables (a .env file is loaded in main
// during development via godotenv). Required fields are validated at
// load time so the process fails fast instead of at first use.
package config
