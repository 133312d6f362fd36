package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// readDocument читает YAML или JSON файл и возвращает его как JSON.
// Путь "-" означает stdin.
func readDocument(path string, stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("%s is not valid JSON", path)
		}
		return data, nil
	}

	// YAML — надмножество JSON, поэтому stdin и остальные расширения идут через yaml.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("%s: expected a mapping at the top level", path)
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to JSON: %w", path, err)
	}
	return out, nil
}

// parseParams разбирает KEY=VALUE. Значение декодируется как YAML скаляр:
// 3 станет числом, true булевым, остальное строкой.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	params := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, raw, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid param format %q, expected KEY=VALUE", kv)
		}

		var value any
		if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
			value = raw
		}
		if _, nested := value.(map[string]any); nested {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

// intervalSeconds переводит длительность вида 60s или 5m в секунды.
func intervalSeconds(every string) (int, error) {
	d, err := time.ParseDuration(every)
	if err != nil {
		return 0, fmt.Errorf("invalid --every value %q: %w", every, err)
	}
	if d < time.Second || d%time.Second != 0 {
		return 0, fmt.Errorf("invalid --every value %q: must be a whole number of seconds", every)
	}
	return int(d / time.Second), nil
}
