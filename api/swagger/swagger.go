package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Attendance Insights API",
        "description": "Aggregates uploaded attendance session sheets into per-student, daily and subject reports.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "tags": [
        {"name": "Attendance", "description": "Aggregated attendance reports"},
        {"name": "Sources", "description": "Stored session files"},
        {"name": "Alerts", "description": "Low attendance notifications"},
        {"name": "Exports", "description": "CSV, PDF and XLSX report downloads"}
    ],
    "paths": {
        "/attendance/report": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Aggregate report over every stored source",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Missing columns or no valid rows", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/overview": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Class overview rating each stored source against the roster",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Missing columns or no valid rows", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/students": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Per-student attendance",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string", "description": "Case-insensitive name or id filter"},
                    {"name": "below", "in": "query", "type": "number", "description": "Only students strictly below this percentage"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid query", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/low": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Students below the attendance threshold",
                "parameters": [
                    {"name": "threshold", "in": "query", "type": "number", "description": "Percentage, defaults to 75"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/sources": {
            "get": {
                "tags": ["Sources"],
                "summary": "List stored session files",
                "parameters": [
                    {"name": "group", "in": "query", "type": "string", "enum": ["batch"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Sources"],
                "summary": "Upload session files",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "files", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "415": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/sources/{name}": {
            "delete": {
                "tags": ["Sources"],
                "summary": "Delete a stored session file",
                "parameters": [
                    {"name": "name", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/alerts": {
            "get": {
                "tags": ["Alerts"],
                "summary": "Recorded alerts",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["QUEUED", "SENT", "SKIPPED", "FAILED"]},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Alerts"],
                "summary": "Queue low attendance alerts",
                "parameters": [
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/AlertDispatchRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Some alerts could not be queued; error.details lists the ones that were", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Alerts disabled", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/exports": {
            "post": {
                "tags": ["Exports"],
                "summary": "Render a report section to a file",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a rendered export",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "token", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "404": {"description": "Unknown or expired link", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "AlertDispatchRequest": {
            "type": "object",
            "properties": {
                "threshold": {"type": "number"},
                "student_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "ExportRequest": {
            "type": "object",
            "required": ["format"],
            "properties": {
                "format": {"type": "string", "enum": ["csv", "pdf", "xlsx"]},
                "section": {"type": "string", "enum": ["students", "daily_trend", "subjects", "low_attendance"]},
                "threshold": {"type": "number"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
