package config

import (
	"github.com/invopop/jsonschema"

	"github.com/marmos91/lustrebulk/pkg/cache"
	"github.com/marmos91/lustrebulk/pkg/scan/static"
)

// SchemaVersion is bumped whenever a configuration key changes meaning.
const SchemaVersion = "1.0.0"

// typedSections lists the free-form sections whose contents depend on a
// type selector, with the structure each one is decoded into.
var typedSections = []struct {
	path  []string
	value any
}{
	{[]string{"scan", "static"}, &static.Config{}},
	{[]string{"cache", "badger"}, &cache.Config{}},
	{[]string{"report", "file"}, &fileSinkConfig{}},
	{[]string{"report", "s3"}, &s3SinkConfig{}},
}

// Schema returns the JSON schema of the configuration file, keyed by the
// same names Load accepts.
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "lustrebulk Configuration"
	schema.Description = "Configuration of a lustrebulk benchmark job"
	schema.Version = SchemaVersion

	for _, section := range typedSections {
		setSection(reflector, schema, section.path, section.value)
	}
	return schema
}

// setSection replaces the untyped schema at path with the schema of v.
func setSection(reflector *jsonschema.Reflector, root *jsonschema.Schema, path []string, v any) {
	node := root
	for _, key := range path[:len(path)-1] {
		child, ok := node.Properties.Get(key)
		if !ok {
			return
		}
		node = child
	}

	sub := reflector.Reflect(v)
	sub.Version = ""
	node.Properties.Set(path[len(path)-1], sub)
}
