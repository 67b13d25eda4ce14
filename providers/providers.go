// Package providers holds presets for well known sign-in providers. Each
// preset takes the caller's options and layers them over its defaults with
// siteauth.Resolve, so any field can be overridden.
package providers

import (
	"os"
	"strings"

	sa "github.com/panyam/siteauth"
)

// fromEnv fills missing client credentials from OAUTH2_<NAME>_CLIENT_ID and
// OAUTH2_<NAME>_CLIENT_SECRET.
func fromEnv(name string, opts sa.Provider) sa.Provider {
	name = strings.ToUpper(name)
	if opts.ClientID == "" {
		opts.ClientID = strings.TrimSpace(os.Getenv("OAUTH2_" + name + "_CLIENT_ID"))
	}
	if opts.ClientSecret == "" {
		opts.ClientSecret = strings.TrimSpace(os.Getenv("OAUTH2_" + name + "_CLIENT_SECRET"))
	}
	return opts
}

// preset resolves opts over base after the env fallback
func preset(envName string, base, opts sa.Provider) sa.Provider {
	return sa.Resolve(base, fromEnv(envName, opts))
}
