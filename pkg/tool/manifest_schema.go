package tool

// ManifestSchema is the JSON Schema for tool.json validation
const ManifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name", "version", "description", "domains", "allowed_roles", "input_schema"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "^[a-z][a-z0-9_]*$",
      "description": "Unique tool name"
    },
    "version": {
      "type": "string",
      "pattern": "^\\d+\\.\\d+\\.\\d+$",
      "description": "Semver version"
    },
    "description": {
      "type": "string",
      "minLength": 1
    },
    "domains": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "allowed_roles": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "required_permissions": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "input_schema": {
      "type": "object",
      "properties": {
        "type": { "type": "string" },
        "properties": { "type": "object" },
        "required": { "type": "array", "items": { "type": "string" } }
      }
    },
    "output_schema": {
      "type": "object"
    },
    "cost_estimate": {
      "type": "number",
      "minimum": 0
    },
    "timeout_seconds": {
      "type": "number",
      "minimum": 0
    },
    "requires_network": { "type": "boolean" },
    "requires_filesystem": { "type": "boolean" },
    "examples": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["params"],
        "properties": {
          "description": { "type": "string" },
          "params": { "type": "object" }
        }
      }
    },
    "tags": {
      "type": "array",
      "items": { "type": "string" }
    },
    "implementation": {
      "type": "string",
      "pattern": "^[a-z][a-z0-9_]*$"
    }
  }
}`
