package docstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Config is the connection configuration supplied at runtime.
type Config struct {
	APIKey            string `json:"apiKey" yaml:"api_key"`
	AuthDomain        string `json:"authDomain" yaml:"auth_domain"`
	ProjectID         string `json:"projectId" yaml:"project_id"`
	StorageBucket     string `json:"storageBucket" yaml:"storage_bucket"`
	MessagingSenderID string `json:"messagingSenderId" yaml:"messaging_sender_id"`
	AppID             string `json:"appId" yaml:"app_id"`
}

// DefaultProject is used when no project id is configured.
const DefaultProject = "default"

var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks the required fields and the names used on disk.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: apiKey is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.AuthDomain) == "" {
		return fmt.Errorf("%w: authDomain is required", ErrInvalidConfig)
	}
	if c.ProjectID != "" && !safeName.MatchString(c.ProjectID) {
		return fmt.Errorf("%w: invalid projectId %q", ErrInvalidConfig, c.ProjectID)
	}
	if c.StorageBucket != "" && !safeName.MatchString(c.StorageBucket) {
		return fmt.Errorf("%w: invalid storageBucket %q", ErrInvalidConfig, c.StorageBucket)
	}
	return nil
}

// Missing lists the recommended fields that are empty.
func (c Config) Missing() []string {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "projectId")
	}
	if c.StorageBucket == "" {
		missing = append(missing, "storageBucket")
	}
	if c.MessagingSenderID == "" {
		missing = append(missing, "messagingSenderId")
	}
	if c.AppID == "" {
		missing = append(missing, "appId")
	}
	return missing
}

// Project returns the project id, or DefaultProject.
func (c Config) Project() string {
	if c.ProjectID == "" {
		return DefaultProject
	}
	return c.ProjectID
}

// Bucket returns the storage bucket, defaulting to the project.
func (c Config) Bucket() string {
	if c.StorageBucket == "" {
		return c.Project()
	}
	return c.StorageBucket
}

// Masked returns a copy safe to show: the api key is reduced to its last 4 characters.
func (c Config) Masked() Config {
	if n := len(c.APIKey); n > 4 {
		c.APIKey = strings.Repeat("*", n-4) + c.APIKey[n-4:]
	} else if n > 0 {
		c.APIKey = strings.Repeat("*", n)
	}
	return c
}
