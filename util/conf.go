package util

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Name is the software name used in user agents, NodeInfo and logging.
const Name = "smilodon"

const confFileName = Name + ".yml"

type AppConfig struct {
	Conf struct {
		SslDomain                string `yaml:"sslDomain"`
		Host                     string `yaml:"host"`
		HttpPort                 int    `yaml:"httpPort"`
		SshPort                  int    `yaml:"sshPort"`
		WithFederation           bool   `yaml:"withFederation"`
		Closed                   bool   `yaml:"closed"`
		WithPprof                bool   `yaml:"withPprof"`
		WithJournald             bool   `yaml:"withJournald"`
		NodeDescription          string `yaml:"nodeDescription"`
		DeliveryWorkers          int    `yaml:"deliveryWorkers"`
		ManualFollowerApproval   bool   `yaml:"manualFollowerApproval"`
		TrendingWindowDays       int    `yaml:"trendingWindowDays"`
		TrendingMaxLimit         int    `yaml:"trendingMaxLimit"`
		ProcessedActivityTtlDays int    `yaml:"processedActivityTtlDays"`
		ReminderTickSeconds      int    `yaml:"reminderTickSeconds"`
	} `yaml:"conf"`
}

const defaultConf = `conf:
  # public domain of this instance, used in all federated URLs
  sslDomain: localhost
  host: 0.0.0.0
  httpPort: 8080
  sshPort: 2222
  # enable federation (signed delivery, inbox processing, discovery endpoints)
  withFederation: false
  # closed instances only accept known operator SSH keys
  closed: false
  withPprof: false
  withJournald: false
  nodeDescription: a federated event calendar
  deliveryWorkers: 16
  # when true, inbound Follow activities wait for manual approval
  manualFollowerApproval: false
  trendingWindowDays: 7
  trendingMaxLimit: 50
  processedActivityTtlDays: 30
  reminderTickSeconds: 1
`

// ReadConf loads the yaml config next to the binary, creating a default
// config file on first run.
func ReadConf() (*AppConfig, error) {
	path := ResolveFilePath(confFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(defaultConf), 0644); err != nil {
			return nil, fmt.Errorf("could not write default config to %s: %w", path, err)
		}
		log.Printf("Created default config at %s", path)
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	conf := &AppConfig{}
	if err := yaml.Unmarshal(buf, conf); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	conf.applyDefaults()
	return conf, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Conf.SslDomain == "" {
		c.Conf.SslDomain = "localhost"
	}
	if c.Conf.Host == "" {
		c.Conf.Host = "0.0.0.0"
	}
	if c.Conf.HttpPort == 0 {
		c.Conf.HttpPort = 8080
	}
	if c.Conf.SshPort == 0 {
		c.Conf.SshPort = 2222
	}
	if c.Conf.DeliveryWorkers <= 0 {
		c.Conf.DeliveryWorkers = 16
	}
	if c.Conf.TrendingWindowDays <= 0 {
		c.Conf.TrendingWindowDays = 7
	}
	if c.Conf.TrendingMaxLimit <= 0 {
		c.Conf.TrendingMaxLimit = 50
	}
	if c.Conf.ProcessedActivityTtlDays <= 0 {
		c.Conf.ProcessedActivityTtlDays = 30
	}
	if c.Conf.ReminderTickSeconds <= 0 {
		c.Conf.ReminderTickSeconds = 1
	}
}

// BaseURL returns the https origin of this instance, the prefix of every
// actor URL and activity id we mint.
func (c *AppConfig) BaseURL() string {
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

// AutoAcceptFollowers reports whether inbound Follow activities are accepted
// without operator review.
func (c *AppConfig) AutoAcceptFollowers() bool {
	return !c.Conf.ManualFollowerApproval
}

// ResolveFilePath returns the path of a file that lives next to the binary.
// Falls back to the working directory when the executable path is unknown.
func ResolveFilePath(filename string) string {
	ex, err := os.Executable()
	if err != nil {
		return filename
	}
	return filepath.Join(filepath.Dir(ex), filename)
}

// ResolveFilePathWithSubdir is ResolveFilePath for a file inside a
// subdirectory, creating the directory if needed.
func ResolveFilePathWithSubdir(subdir string, filename string) string {
	base := "."
	if ex, err := os.Executable(); err == nil {
		base = filepath.Dir(ex)
	}
	dir := filepath.Join(base, subdir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		log.Printf("Could not create %s: %v", dir, err)
	}
	return filepath.Join(dir, filename)
}
