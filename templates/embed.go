// Package templates embeds the default relay configuration.
package templates

import "embed"

//go:embed config.yaml
var FS embed.FS
