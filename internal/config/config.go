package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Blobs struct {
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"blobs"`
	// Users seeds the local account registry; role records are written to the
	// document store at startup.
	Users []SeedUser `yaml:"users"`
}

type SeedUser struct {
	Email  string `yaml:"email"`
	Secret string `yaml:"secret"`
	Role   string `yaml:"role"`
	Name   string `yaml:"name"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
