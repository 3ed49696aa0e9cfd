// Package docs registers the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/crm/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/customers": {
            "get": {
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "List customers",
                "parameters": [
                    {"type": "string", "name": "q", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListCustomersResponse"}},
                    "304": {"description": "Not Modified"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "Create a customer",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateCustomerRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Customer"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/customers/check-duplicate": {
            "get": {
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "Find customers whose name contains the candidate",
                "parameters": [
                    {"type": "string", "name": "name", "in": "query", "required": true},
                    {"type": "string", "name": "exclude_phone", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/customers/merge": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "Merge secondary customers into a primary",
                "parameters": [
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "name": "X-User-ID", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.MergeCustomersRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Idempotency-Key reused for a different request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/customers/{phone}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "Get a customer with orders, interactions and tasks",
                "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["customers"],
                "summary": "Update customer fields",
                "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Customer"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["customers"],
                "summary": "Delete a customer without history",
                "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/customers/{phone}/orders": {
            "get": {"tags": ["orders"], "summary": "List a customer's orders", "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["orders"], "summary": "Record an order", "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/customers/{phone}/interactions": {
            "get": {"tags": ["interactions"], "summary": "List a customer's interactions", "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["interactions"], "summary": "Log an interaction", "parameters": [{"type": "string", "name": "phone", "in": "path", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/users": {
            "get": {"tags": ["users"], "summary": "List staff users", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["users"], "summary": "Create a staff user", "responses": {"201": {"description": "Created"}}}
        },
        "/users/{id}": {
            "get": {"tags": ["users"], "summary": "Get a staff user", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/tasks": {
            "get": {"tags": ["tasks"], "summary": "List tasks", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["tasks"], "summary": "Create a task", "responses": {"201": {"description": "Created"}}}
        },
        "/tasks/{id}": {
            "get": {"tags": ["tasks"], "summary": "Get a task", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/tasks/{id}/status": {
            "patch": {"tags": ["tasks"], "summary": "Change a task's status", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}}
        },
        "/tasks/{id}/delay": {
            "post": {"tags": ["tasks"], "summary": "Move a task's due time", "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/audit-logs": {
            "get": {"tags": ["audit"], "summary": "List audit records", "responses": {"200": {"description": "OK"}}}
        },
        "/stats": {
            "get": {"tags": ["stats"], "summary": "Dashboard counters", "responses": {"200": {"description": "OK"}}}
        }
    },
    "definitions": {
        "domain.Customer": {
            "type": "object",
            "properties": {
                "phone": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "line_id": {"type": "string"},
                "facebook_url": {"type": "string"},
                "source": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}},
                "region": {"type": "string"},
                "marketing_consent": {"type": "boolean"},
                "notes": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.CreateCustomerRequest": {
            "type": "object",
            "required": ["name", "phone"],
            "properties": {
                "phone": {"type": "string", "example": "0912345678"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "handlers.MergeCustomersRequest": {
            "type": "object",
            "required": ["primaryPhone", "secondaryPhones"],
            "properties": {
                "primaryPhone": {"type": "string", "example": "0912345678"},
                "secondaryPhones": {"type": "array", "items": {"type": "string"}},
                "mergeFields": {"type": "object", "additionalProperties": {"type": "boolean"}}
            }
        },
        "handlers.ListCustomersResponse": {
            "type": "object",
            "properties": {
                "customers": {"type": "array", "items": {"$ref": "#/definitions/domain.Customer"}},
                "pagination": {"type": "object"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "CRM Backend API",
	Description:      "Customer records, duplicate detection, merging, orders, interactions and tasks.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
