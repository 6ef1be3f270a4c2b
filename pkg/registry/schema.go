package registry

// definitionSchema is the JSON Schema every definition file must pass
// before structural validation in models.LoadDefinition.
const definitionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["record_type", "states", "transitions"],
  "properties": {
    "record_type": {
      "type": "string",
      "minLength": 1
    },
    "states": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "docstatus"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "docstatus": {"type": "integer", "minimum": 0, "maximum": 2},
          "allow_edit_role": {"type": "string"},
          "update_field": {"type": "string"},
          "update_value": {},
          "optional": {"type": "boolean"},
          "notify_on_entry": {"type": "boolean"},
          "initial": {"type": "boolean"}
        }
      }
    },
    "transitions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from_state", "to_state", "action"],
        "properties": {
          "from_state": {"type": "string", "minLength": 1},
          "to_state": {"type": "string", "minLength": 1},
          "action": {"type": "string", "minLength": 1},
          "allowed_role": {"type": "string"},
          "allow_self_approval": {"type": "boolean"},
          "condition": {"type": "string"}
        }
      }
    }
  }
}`
