package staticserve

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// readConfigurationFile will read the yaml config file at path. Only the
// fields present in the file are set in the returned *Configuration.
//
// Example:
//
//	port: 3000
//	serveFolder: ./public
//	healthPath: /health
//	promHostAndPort: localhost:2112
func readConfigurationFile(path string) (*Configuration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error: readConfigurationFile: failed to read config file %v: %v", path, err)
	}

	var fc Configuration
	err = yaml.Unmarshal(b, &fc)
	if err != nil {
		return nil, fmt.Errorf("error: readConfigurationFile: unmarshal of config file %v failed: %v", path, err)
	}

	return &fc, nil
}
