package main

import (
	"os"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"remoting/codec"
)

// Config is the demo configuration file.
type Config struct {
	Listen struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"listen"`
	Codec codec.Type `yaml:"codec"`
	// Debug 是调试页面的监听地址，为空时不启动
	Debug string `yaml:"debug"`
	Log   struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{Codec: codec.GobType}
	cfg.Listen.Host = "127.0.0.1"
	cfg.Listen.Port = 9000
	cfg.Log.Level = "info"
	return cfg
}

// readConfig reads file over the defaults. An empty file name returns the
// defaults.
func readConfig(file string) (*Config, error) {
	cfg := defaultConfig()
	if file == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Annotatef(err, "reading %s", file)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Annotatef(err, "parsing %s", file)
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Annotatef(err, "config %s", file)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Listen.Port < 0 || cfg.Listen.Port > 65535 {
		return errors.NotValidf("listen port %d", cfg.Listen.Port)
	}
	if _, ok := codec.NewCodecFuncMap[cfg.Codec]; !ok {
		return errors.NotSupportedf("codec %q", cfg.Codec)
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return errors.NotValidf("log level %q", cfg.Log.Level)
	}
	return nil
}
