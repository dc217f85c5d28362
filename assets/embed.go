// Package assets carries the starter configuration written by the init
// command.
package assets

import (
	_ "embed"
)

// SystemConfigYAML is the default system_config.yaml.
//
//go:embed system_config.yaml
var SystemConfigYAML []byte

// SampleProgramYAML is an example rule set for program_configs/.
//
//go:embed sample_program.yaml
var SampleProgramYAML []byte
