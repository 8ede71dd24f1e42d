// Package config loads typed configuration from the environment and from
// YAML files.
//
// Load parses environment variables into a struct using
// github.com/caarlos0/env/v11 tags, after loading a .env file with
// github.com/joho/godotenv when one exists:
//
//	type Config struct {
//		Addr    string        `env:"HTTP_ADDR" envDefault:":8080"`
//		Timeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// LoadYAML decodes a YAML document with strict field checking. ${VAR}
// references are expanded from the environment first, so a file can carry
// structure while secrets stay in variables:
//
//	providers:
//	  - id: gitlab
//	    client_secret: ${GITLAB_OAUTH_CLIENT_SECRET}
package config
