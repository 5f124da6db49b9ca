package publishers

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gookit/validate"
	"gopkg.in/yaml.v3"
)

// Sink types understood by DefaultRegistry.
const (
	TypeSQS       = "sqs"
	TypeSNS       = "sns"
	TypeGCPPubSub = "gcp_pubsub"
	TypeHTTP      = "http"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

// PublisherConfig is one sink entry of the publishers file. Exactly the block matching
// Type is read.
type PublisherConfig struct {
	ID        string                    `json:"id" yaml:"id"`
	Type      string                    `json:"type" yaml:"type"`
	Enabled   *bool                     `json:"enabled" yaml:"enabled"`
	SQS       *SQSPublisherConfig       `json:"sqs" yaml:"sqs"`
	SNS       *SNSPublisherConfig       `json:"sns" yaml:"sns"`
	GCPPubSub *GCPPubSubPublisherConfig `json:"gcp_pubsub" yaml:"gcp_pubsub"`
	HTTP      *HTTPPublisherConfig      `json:"http" yaml:"http"`
}

// AWSCredentials pins static keys and a custom endpoint such as localstack. Empty values
// use the default AWS credential chain.
type AWSCredentials struct {
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
}

type SQSPublisherConfig struct {
	QueueURL       string `json:"uri" yaml:"uri" validate:"required"`
	Region         string `json:"region" yaml:"region" validate:"required"`
	AWSCredentials `json:",inline" yaml:",inline"`
}

type SNSPublisherConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn" validate:"required"`
	Region         string `json:"region" yaml:"region" validate:"required"`
	AWSCredentials `json:",inline" yaml:",inline"`
}

type GCPPubSubPublisherConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id" validate:"required"`
	Topic           string `json:"topic" yaml:"topic" validate:"required"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

type HTTPPublisherConfig struct {
	URL            string            `json:"url" yaml:"url" validate:"required|fullUrl"`
	Method         string            `json:"method" yaml:"method" validate:"in:POST,PUT,PATCH"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds" validate:"min:1"`
}

// ConfigRegistry holds the sink entries of a publishers file in declaration order.
type ConfigRegistry struct {
	publishers []PublisherConfig
	idx        map[string]int
}

// LoadRegistry reads a YAML or JSON publishers file. ${VAR} references in URLs, headers
// and credentials are expanded from the environment.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var file struct {
		Publishers []PublisherConfig `json:"publishers" yaml:"publishers"`
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(raw, &file)
	} else {
		err = yaml.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers file %s: %w", path, err)
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	reg := &ConfigRegistry{idx: make(map[string]int, len(file.Publishers))}
	for i, cfg := range file.Publishers {
		cfg = cfg.normalized()
		if err := validatePublisherConfig(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := reg.idx[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		reg.idx[cfg.ID] = len(reg.publishers)
		reg.publishers = append(reg.publishers, cfg)
	}
	return reg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func expandEnv(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "${") {
		return s
	}
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(envRef.FindStringSubmatch(ref)[1])
	})
}

// normalized returns a copy with trimmed fields, expanded secrets and defaults applied.
func (cfg PublisherConfig) normalized() PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Enabled == nil {
		on := true
		cfg.Enabled = &on
	}

	if cfg.SQS != nil {
		c := *cfg.SQS
		c.QueueURL = expandEnv(c.QueueURL)
		c.Region = strings.TrimSpace(c.Region)
		c.AWSCredentials = c.AWSCredentials.normalized()
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		c.TopicARN = expandEnv(c.TopicARN)
		c.Region = strings.TrimSpace(c.Region)
		c.AWSCredentials = c.AWSCredentials.normalized()
		cfg.SNS = &c
	}
	if cfg.GCPPubSub != nil {
		c := *cfg.GCPPubSub
		c.ProjectID = strings.TrimSpace(c.ProjectID)
		c.Topic = strings.TrimSpace(c.Topic)
		c.CredentialsFile = expandEnv(c.CredentialsFile)
		cfg.GCPPubSub = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		c.URL = expandEnv(c.URL)
		c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
		if c.Method == "" {
			c.Method = httpDefaultMethod
		}
		if c.TimeoutSeconds <= 0 {
			c.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		headers := make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			k, v = strings.TrimSpace(k), expandEnv(v)
			if k != "" && v != "" {
				headers[k] = v
			}
		}
		c.Headers = nil
		if len(headers) > 0 {
			c.Headers = headers
		}
		cfg.HTTP = &c
	}
	return cfg
}

func (c AWSCredentials) normalized() AWSCredentials {
	c.AccessKeyID = expandEnv(c.AccessKeyID)
	c.SecretAccessKey = expandEnv(c.SecretAccessKey)
	c.Endpoint = expandEnv(c.Endpoint)
	return c
}

// validatePublisherConfig checks the entry and the settings block its type requires.
// Types without a built-in block are left for the registry to resolve.
func validatePublisherConfig(cfg PublisherConfig) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	}

	var block any
	switch cfg.Type {
	case TypeSQS:
		if cfg.SQS != nil {
			block = cfg.SQS
		}
	case TypeSNS:
		if cfg.SNS != nil {
			block = cfg.SNS
		}
	case TypeGCPPubSub:
		if cfg.GCPPubSub != nil {
			block = cfg.GCPPubSub
		}
	case TypeHTTP:
		if cfg.HTTP != nil {
			block = cfg.HTTP
		}
	default:
		return nil
	}
	if block == nil {
		return fmt.Errorf("%s config required for publisher %q", cfg.Type, cfg.ID)
	}
	return validateStruct(fmt.Sprintf("publisher %q %s", cfg.ID, cfg.Type), block)
}

func validateStruct(name string, s any) error {
	v := validate.Struct(s)
	if !v.Validate() {
		return fmt.Errorf("%s: %s", name, v.Errors.One())
	}
	return nil
}

// ByID returns the entry with the given id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	i, ok := r.idx[strings.TrimSpace(id)]
	if !ok {
		return PublisherConfig{}, false
	}
	return r.publishers[i], true
}

// All returns a copy of every entry.
func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	return append([]PublisherConfig(nil), r.publishers...)
}

// Enabled returns the entries that are switched on.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, cfg := range r.All() {
		if cfg.EnabledValue() {
			out = append(out, cfg)
		}
	}
	return out
}

// EnabledValue treats a missing enabled flag as true.
func (cfg PublisherConfig) EnabledValue() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}
