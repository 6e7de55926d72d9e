package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}

// resolveAPIKey prefers the inline key and falls back to the named env variable.
func resolveAPIKey(key, env string) string {
	key = strings.TrimSpace(key)
	if key != "" {
		return key
	}
	env = strings.TrimSpace(env)
	if env == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(env))
}
