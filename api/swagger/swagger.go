package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Whale Spotting API",
        "description": "Public whale sighting reports, admin review and feed ingestion.",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Search", "description": "Public search over confirmed sightings"},
        {"name": "Sightings", "description": "Visitor submissions"},
        {"name": "Review", "description": "Admin review workflow"},
        {"name": "Admin", "description": "Feed ingestion and service counters"}
    ],
    "paths": {
        "/search": {
            "get": {
                "tags": ["Search"],
                "summary": "Search confirmed sightings",
                "parameters": [
                    {"name": "species", "in": "query", "type": "string"},
                    {"name": "location", "in": "query", "type": "string"},
                    {"name": "sightedAt", "in": "query", "type": "string", "format": "date"},
                    {"name": "page", "in": "query", "type": "integer", "default": 1},
                    {"name": "pageSize", "in": "query", "type": "integer", "default": 10}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed date", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/search/export": {
            "get": {
                "tags": ["Search"],
                "summary": "Download search results",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"], "default": "csv"},
                    {"name": "species", "in": "query", "type": "string"},
                    {"name": "location", "in": "query", "type": "string"},
                    {"name": "sightedAt", "in": "query", "type": "string", "format": "date"},
                    {"name": "page", "in": "query", "type": "integer", "default": 1},
                    {"name": "pageSize", "in": "query", "type": "integer", "default": 10}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}}
                }
            }
        },
        "/sightings": {
            "post": {
                "tags": ["Sightings"],
                "summary": "Report a sighting",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SightingInput"}}
                ],
                "responses": {
                    "201": {"description": "Created in review", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sightings/recent": {
            "get": {
                "tags": ["Sightings"],
                "summary": "Latest confirmed sightings",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sightings/review": {
            "get": {
                "tags": ["Review"],
                "summary": "Sightings awaiting review",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/sightings/{id}": {
            "get": {
                "tags": ["Sightings"],
                "summary": "Get a sighting",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Review"],
                "summary": "Delete a sighting",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Deleted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sightings/{id}/confirm": {
            "put": {
                "tags": ["Review"],
                "summary": "Confirm a sighting, optionally replacing its fields",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/SightingInput"}}
                ],
                "responses": {
                    "200": {"description": "Confirmed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Transition not allowed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sightings/{id}/restore": {
            "post": {
                "tags": ["Review"],
                "summary": "Move a sighting back to review",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Restored", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/ingest": {
            "post": {
                "tags": ["Admin"],
                "summary": "Ingest externally sourced sightings",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IngestRequest"}}
                ],
                "responses": {
                    "200": {"description": "Ingest result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/ingest/poll": {
            "post": {
                "tags": ["Admin"],
                "summary": "Schedule a feed poll",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "202": {"description": "Poll enqueued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Feed not configured", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/stats": {
            "get": {
                "tags": ["Admin"],
                "summary": "Service counters",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "SightingInput": {
            "type": "object",
            "required": ["species", "latitude", "longitude", "sightedAt"],
            "properties": {
                "apiId": {"type": "string"},
                "species": {"type": "string"},
                "quantity": {"type": "string"},
                "location": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"},
                "description": {"type": "string"},
                "sightedAt": {"type": "string"},
                "submittedByName": {"type": "string"},
                "submittedByEmail": {"type": "string"}
            }
        },
        "IngestRequest": {
            "type": "object",
            "required": ["sightings"],
            "properties": {
                "sightings": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/SightingInput"}
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
