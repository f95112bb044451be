// Package embedded provides access to embedded configuration files.
package embedded

import _ "embed"

// VoicesData contains the embedded synthesis voice catalog YAML data.
//
//go:embed voices/voices.yaml
var VoicesData []byte
