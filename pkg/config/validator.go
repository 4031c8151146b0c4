package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks the configuration for values the proxy cannot start with.
func (c *ProxyConfig) Validate() error {
	var errs []error

	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		errs = append(errs, &ValidationError{Field: "proxyPort", Message: "must be between 0 and 65535"})
	}
	if !strings.HasPrefix(c.APIPrefix, "/") || c.APIPrefix == "/" {
		errs = append(errs, &ValidationError{Field: "apiPrefix", Message: "must start with / and not be the root"})
	}
	if len(c.ConfigSets) == 0 {
		errs = append(errs, &ValidationError{Field: "configSets", Message: "at least one config set is required"})
	}

	seen := make(map[string]bool, len(c.ConfigSets))
	for i, set := range c.ConfigSets {
		field := fmt.Sprintf("configSets[%d]", i)
		if set.ID == "" {
			errs = append(errs, &ValidationError{Field: field + ".id", Message: "is required"})
		} else if seen[set.ID] {
			errs = append(errs, &ValidationError{Field: field + ".id", Message: "duplicate id " + set.ID})
		}
		seen[set.ID] = true

		if err := validateTarget(set.TargetURL); err != nil {
			errs = append(errs, &ValidationError{Field: field + ".targetUrl", Message: err.Error()})
		}
	}

	if c.MaxBodySize <= 0 {
		errs = append(errs, &ValidationError{Field: "maxBodySize", Message: "must be positive"})
	}
	if c.WebSocket.MaxConnections < 0 {
		errs = append(errs, &ValidationError{Field: "websocket.maxConnections", Message: "must not be negative"})
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		errs = append(errs, &ValidationError{Field: "websocket.maxMessageSize", Message: "must be positive"})
	}
	if c.WebSocket.MessageLogSize <= 0 {
		errs = append(errs, &ValidationError{Field: "websocket.messageLogSize", Message: "must be positive"})
	}

	return errors.Join(errs...)
}

func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
