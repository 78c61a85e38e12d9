package config

import "fmt"

// TLS holds the session security settings.
type TLS struct {
	Mode Mode
	// ServerName is the name verified in ModeTLSDomain.
	ServerName string
	CAFile     string
	CertFile   string
	KeyFile    string
	// Insecure disables certificate verification entirely.
	Insecure bool
	// NoHostnameCheck keeps chain verification but skips the name match.
	NoHostnameCheck bool
}

// Validate ...
func (c *TLS) Validate() []error {
	var errors []error

	if !c.Mode.IsTLS() {
		if c.ServerName != "" || c.CAFile != "" || c.CertFile != "" || c.KeyFile != "" || c.Insecure || c.NoHostnameCheck {
			errors = append(errors, fmt.Errorf("TLS options require '--ssl'"))
		}
		return errors
	}

	if c.Mode == ModeTLSDomain && c.ServerName == "" {
		errors = append(errors, fmt.Errorf("'--server-name' is required in domain mode"))
	}

	if c.Mode == ModeTLSAnonymous && c.ServerName != "" {
		errors = append(errors, fmt.Errorf("'--server-name' cannot be used in anonymous mode"))
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		errors = append(errors, fmt.Errorf("'--cert' and '--key' must be used together"))
	}

	if c.Insecure && c.CAFile != "" {
		errors = append(errors, fmt.Errorf("'--ca' has no effect with '--insecure'"))
	}

	return errors
}
