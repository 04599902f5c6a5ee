package config

import (
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func property(t *testing.T, s *jsonschema.Schema, path ...string) *jsonschema.Schema {
	t.Helper()
	for _, key := range path {
		require.NotNil(t, s.Properties, "no properties above %q", key)
		child, ok := s.Properties.Get(key)
		require.True(t, ok, "missing property %q", key)
		s = child
	}
	return s
}

func TestSchema(t *testing.T) {
	schema := Schema()
	assert.Equal(t, SchemaVersion, schema.Version)

	t.Run("TopLevelSections", func(t *testing.T) {
		for _, key := range []string{"logging", "group", "scan", "cache", "io", "job", "metrics", "report"} {
			property(t, schema, key)
		}
		property(t, schema, "group", "coordinator")
	})

	t.Run("TypedSections", func(t *testing.T) {
		property(t, schema, "scan", "static", "stripe_count")
		property(t, schema, "cache", "badger", "path")
		property(t, schema, "report", "file", "path")
		property(t, schema, "report", "s3", "bucket")
		property(t, schema, "report", "s3", "max_retries")
	})

	t.Run("Marshals", func(t *testing.T) {
		data, err := json.Marshal(schema)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"key_prefix"`)
	})
}
