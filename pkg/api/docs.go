package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    },
    "security": [{"ApiKeyAuth": []}],
    "paths": {
        "/health": {"get": {"summary": "Health check", "tags": ["health"], "responses": {"200": {"description": "OK"}}}},
        "/stats": {"get": {"summary": "Store statistics", "tags": ["health"], "responses": {"200": {"description": "OK"}}}},
        "/schemas": {"get": {"summary": "List record schemas", "tags": ["schemas"], "responses": {"200": {"description": "OK"}}}},
        "/keys/derive": {"post": {"summary": "Derive a record address from a namespace and owner", "tags": ["keys"], "responses": {"200": {"description": "OK"}, "400": {"description": "Invalid namespace or owner"}}}},
        "/records": {"get": {"summary": "List record addresses", "tags": ["records"], "responses": {"200": {"description": "OK"}}}},
        "/records/{key}": {
            "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}],
            "post": {"summary": "Initialize a record", "tags": ["records"], "responses": {"200": {"description": "Receipt"}, "409": {"description": "Already exists"}, "422": {"description": "Insufficient capacity or capacity exceeded"}}},
            "get": {"summary": "Read a record", "tags": ["records"], "responses": {"200": {"description": "Record"}, "404": {"description": "Not found"}}},
            "patch": {"summary": "Update scalar fields", "tags": ["records"], "responses": {"200": {"description": "Receipt"}, "400": {"description": "Invalid field"}, "404": {"description": "Not found"}}}
        },
        "/records/{key}/append": {
            "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}],
            "post": {"summary": "Append sequence elements, growing the allocation if needed", "tags": ["records"], "responses": {"200": {"description": "Receipt"}, "404": {"description": "Not found"}, "422": {"description": "Growth rejected"}}}
        },
        "/records/{key}/stat": {
            "parameters": [{"name": "key", "in": "path", "required": true, "type": "string"}],
            "get": {"summary": "Allocation capacity and length", "tags": ["records"], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
        },
        "/records/{key}/fields/{field}": {
            "parameters": [
                {"name": "key", "in": "path", "required": true, "type": "string"},
                {"name": "field", "in": "path", "required": true, "type": "string"},
                {"name": "equals", "in": "query", "required": true, "type": "string"}
            ],
            "get": {"summary": "Compare a field with a value", "tags": ["records"], "responses": {"200": {"description": "OK"}}}
        },
        "/receipts/{id}": {
            "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
            "get": {"summary": "Fetch an operation receipt", "tags": ["receipts"], "responses": {"200": {"description": "Receipt"}, "404": {"description": "Not found"}}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Record Vault REST API",
	Description:      "Resizable record store with policy-checked growth.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
