package repo

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}

// nullInt возвращает nil для нуля.
func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

// marshalJSONB кодирует map в JSONB. Nil map сохраняется как NULL.
func marshalJSONB(field string, v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", field, err)
	}
	return data, nil
}

// unmarshalJSONB декодирует JSONB в map. NULL даёт nil map.
func unmarshalJSONB(field string, data []byte) (map[string]any, error) {
	if data == nil {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", field, err)
	}
	return v, nil
}

// limitOrDefault ограничивает размер страницы.
func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
