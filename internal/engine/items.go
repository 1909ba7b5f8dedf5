// internal/engine/items.go - observation item validation and key building
package engine

import (
    "fmt"
    "sort"

    "github.com/xeipuuv/gojsonschema"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

// Per-type attribute schemas. Reported and manually submitted items go
// through the same validation before they are keyed.
var itemSchemas = map[string]string{
    database.TypeProcess: `{
        "type": "object",
        "required": ["name", "path"],
        "properties": {
            "name": {"type": "string", "minLength": 1},
            "path": {"type": "string", "minLength": 1},
            "user": {"type": "string"},
            "args": {"type": "string"}
        }
    }`,
    database.TypePort: `{
        "type": "object",
        "required": ["port", "protocol"],
        "properties": {
            "port": {"type": "string", "pattern": "^[0-9]{1,5}$"},
            "protocol": {"type": "string", "enum": ["tcp", "udp"]},
            "state": {"type": "string"},
            "process": {"type": "string"}
        }
    }`,
    database.TypeSoftware: `{
        "type": "object",
        "required": ["name"],
        "properties": {
            "name": {"type": "string", "minLength": 1},
            "version": {"type": "string"},
            "publisher": {"type": "string"}
        }
    }`,
    database.TypeUSB: `{
        "type": "object",
        "required": ["vendor_id", "product_id"],
        "properties": {
            "vendor_id": {"type": "string", "minLength": 1},
            "product_id": {"type": "string", "minLength": 1},
            "serial": {"type": "string"},
            "description": {"type": "string"}
        }
    }`,
    database.TypeLogin: `{
        "type": "object",
        "required": ["username", "login_type"],
        "properties": {
            "username": {"type": "string", "minLength": 1},
            "login_type": {"type": "string", "minLength": 1},
            "source": {"type": "string"}
        }
    }`,
}

var compiledSchemas = map[string]*gojsonschema.Schema{}

func init() {
    for obsType, raw := range itemSchemas {
        schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
        if err != nil {
            panic(fmt.Sprintf("bad item schema for %s: %v", obsType, err))
        }
        compiledSchemas[obsType] = schema
    }
}

// Types whose items carry a sub-value that drives "changed" detection.
// USB devices and logins are present or absent, nothing in between.
var changeAware = map[string]bool{
    database.TypeProcess:  true,
    database.TypePort:     true,
    database.TypeSoftware: true,
}

// ValidateType checks obsType against the known observation types.
func ValidateType(obsType string) error {
    if _, ok := itemSchemas[obsType]; !ok {
        return fmt.Errorf("unknown observation type %q: %w", obsType, ErrInvalidArgument)
    }
    return nil
}

// BuildItem validates raw attributes against the type schema and derives
// the identity key and change-tracking value.
func BuildItem(obsType string, attrs map[string]string) (database.Item, error) {
    schema, ok := compiledSchemas[obsType]
    if !ok {
        return database.Item{}, fmt.Errorf("unknown observation type %q: %w", obsType, ErrInvalidArgument)
    }

    result, err := schema.Validate(gojsonschema.NewGoLoader(attrs))
    if err != nil {
        return database.Item{}, fmt.Errorf("failed to validate item: %w", err)
    }
    if !result.Valid() {
        return database.Item{}, fmt.Errorf("invalid %s item: %s: %w", obsType, result.Errors()[0].String(), ErrInvalidArgument)
    }

    item := database.Item{Attrs: attrs}
    switch obsType {
    case database.TypeProcess:
        item.Key = attrs["name"] + "|" + attrs["path"]
        item.Value = attrs["user"] + "|" + attrs["args"]
    case database.TypePort:
        item.Key = attrs["port"] + "/" + attrs["protocol"]
        item.Value = attrs["state"] + "|" + attrs["process"]
    case database.TypeSoftware:
        item.Key = attrs["name"]
        item.Value = attrs["version"] + "|" + attrs["publisher"]
    case database.TypeUSB:
        item.Key = attrs["vendor_id"] + ":" + attrs["product_id"] + ":" + attrs["serial"]
    case database.TypeLogin:
        item.Key = attrs["username"] + ":" + attrs["login_type"]
    }

    return item, nil
}

// BuildItems validates a batch, deduplicating by key (last write wins) and
// returning items sorted by key.
func BuildItems(obsType string, raw []map[string]string) ([]database.Item, error) {
    byKey := make(map[string]database.Item, len(raw))
    for i, attrs := range raw {
        item, err := BuildItem(obsType, attrs)
        if err != nil {
            return nil, fmt.Errorf("item %d: %w", i, err)
        }
        byKey[item.Key] = item
    }

    items := make([]database.Item, 0, len(byKey))
    for _, item := range byKey {
        items = append(items, item)
    }
    sort.Slice(items, func(i, j int) bool { return items[i].Key < items[j].Key })

    return items, nil
}

func lockKey(agentID, obsType string) string {
    return agentID + "/" + obsType
}
