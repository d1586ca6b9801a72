package chatrelay

import _ "embed"

// DefaultConfig is the relay configuration used when no config file exists. A config file is decoded on
// top of it, so the file only needs the keys it changes.
//
//go:embed config.example.yaml
var DefaultConfig []byte
