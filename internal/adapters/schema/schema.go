// Package schema provides the telemetry field layouts: the built-in
// legacy payload, a static list from configuration, and the operator
// preference file.
package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
)

// LegacyTrailer is the team-identifier column the legacy log carries last.
const LegacyTrailer = "TEAM_NAME"

var legacyFields = []domain.Field{
	{Name: "TEAM_ID"},
	{Name: "MISSION_TIME"},
	{Name: "PACKET_COUNT"},
	{Name: "MODE"},
	{Name: "STATE"},
	{Name: "ALTITUDE", Unit: "m"},
	{Name: "TEMPERATURE", Unit: "C"},
	{Name: "PRESSURE", Unit: "kPa"},
	{Name: "VOLTAGE", Unit: "V"},
	{Name: "GYRO_R", Unit: "deg/s"},
	{Name: "GYRO_P", Unit: "deg/s"},
	{Name: "GYRO_Y", Unit: "deg/s"},
	{Name: "ACCEL_R", Unit: "deg/s^2"},
	{Name: "ACCEL_P", Unit: "deg/s^2"},
	{Name: "ACCEL_Y", Unit: "deg/s^2"},
	{Name: "MAG_R", Unit: "gauss"},
	{Name: "MAG_P", Unit: "gauss"},
	{Name: "MAG_Y", Unit: "gauss"},
	{Name: "AUTO_GYRO_ROTATION_RATE", Unit: "deg/s"},
	{Name: "GPS_TIME"},
	{Name: "GPS_ALTITUDE", Unit: "m"},
	{Name: "GPS_LATITUDE", Unit: "deg"},
	{Name: "GPS_LONGITUDE", Unit: "deg"},
	{Name: "GPS_SATS"},
	{Name: "CMD_ECHO"},
	{Name: LegacyTrailer},
}

// Provider adapts a function to ports.SchemaProvider.
type Provider func() ([]domain.Field, error)

// FieldSchema implements ports.SchemaProvider.
func (p Provider) FieldSchema() ([]domain.Field, error) { return p() }

// Legacy returns the built-in 26-column payload layout.
func Legacy() ports.SchemaProvider {
	return Static(legacyFields)
}

// Static returns a provider for a fixed field list.
func Static(fields []domain.Field) ports.SchemaProvider {
	fields = append([]domain.Field(nil), fields...)
	return Provider(func() ([]domain.Field, error) {
		return append([]domain.Field(nil), fields...), nil
	})
}

// File reads the telemetryFields object of a JSON preference file:
//
//	{ "telemetryFields": { "ALTITUDE": "m", "STATE": "" } }
//
// Key order in the file is the column order. The file is re-read on
// every call so an explicit reload picks up edits.
func File(path string) ports.SchemaProvider {
	return Provider(func() ([]domain.Field, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		fields, err := ParseFieldMap(data, "telemetryFields")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return fields, nil
	})
}

// ParseFieldMap decodes the object at key as an ordered name to unit
// map. JSON is valid YAML, and the node tree keeps mapping order.
func ParseFieldMap(data []byte, key string) ([]domain.Field, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchema, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidSchema)
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level is not an object", domain.ErrInvalidSchema)
	}
	fieldMap := lookup(root, key)
	if fieldMap == nil {
		return nil, fmt.Errorf("%w: no %q object", domain.ErrInvalidSchema, key)
	}
	if fieldMap.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %q is not an object", domain.ErrInvalidSchema, key)
	}

	fields := make([]domain.Field, 0, len(fieldMap.Content)/2)
	for i := 0; i+1 < len(fieldMap.Content); i += 2 {
		k, v := fieldMap.Content[i], fieldMap.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: unit of %q is not a string", domain.ErrInvalidSchema, k.Value)
		}
		unit := v.Value
		if v.Tag == "!!null" {
			unit = ""
		}
		fields = append(fields, domain.Field{Name: k.Value, Unit: unit})
	}
	return fields, nil
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Load builds a validated schema from p.
func Load(p ports.SchemaProvider) (*domain.Schema, error) {
	fields, err := p.FieldSchema()
	if err != nil {
		return nil, err
	}
	return domain.NewSchema(fields)
}
