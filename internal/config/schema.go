package config

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
)

// schema constrains config files. #Config is closed, so unknown keys fail.
const schema = `
#Duration: =~"^([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$"

#Config: {
	url?:            string
	log_level?:      int & >=0
	driver?:         "cdp" | "rod"
	headless?:       bool
	no_sandbox?:     bool
	chrome?:         string
	port?:           int & >0 & <65536
	remote_url?:     string
	element_class?:  string
	ajax_counter?:   string & !=""
	ready_timeout?:  #Duration
	settle_timeout?: #Duration
	poll_interval?:  #Duration
	log_capacity?:   int & >0
	json?:           bool
	no_color?:       bool
}
`

// validate checks a YAML document against #Config.
func validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	def := ctx.CompileString(schema).LookupPath(cue.ParsePath("#Config"))
	if err := def.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	file, err := yaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}

	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return nil
}
