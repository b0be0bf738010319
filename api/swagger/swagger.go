package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Presence API",
        "description": "Classroom attendance decision engine",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Check-ins", "description": "Attendance submission and decision"},
        {"name": "Classrooms", "description": "Classroom provisioning and secret rotation"},
        {"name": "Attendance", "description": "Dashboard queries over the audit trail"},
        {"name": "Students", "description": "Device binding administration"}
    ],
    "paths": {
        "/checkins": {
            "post": {
                "tags": ["Check-ins"],
                "summary": "Submit an attendance check-in",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "Decision", "schema": {"$ref": "#/definitions/Decision"}},
                    "400": {"description": "Invalid input"},
                    "401": {"description": "Unauthenticated"},
                    "503": {"description": "Store unavailable"}
                }
            }
        },
        "/classrooms/{id}/rotate-secret": {
            "post": {
                "tags": ["Classrooms"],
                "summary": "Rotate a classroom secret",
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RotateSecretRequest"}}
                ],
                "responses": {
                    "200": {"description": "Rotation confirmed"},
                    "400": {"description": "Invalid secret"},
                    "403": {"description": "Insufficient privilege"},
                    "404": {"description": "Classroom not found"},
                    "409": {"description": "Secret already in use"}
                }
            }
        },
        "/attendance": {
            "get": {
                "tags": ["Attendance"],
                "summary": "List attendance records",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "CheckInRequest": {
            "type": "object",
            "required": ["classroomId", "secret", "latitude", "longitude"],
            "properties": {
                "classroomId": {"type": "string"},
                "secret": {"type": "string"},
                "latitude": {"type": "number"},
                "longitude": {"type": "number"}
            }
        },
        "Decision": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["PRESENT", "REJECTED"]},
                "rejection_reason": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "retry_after_seconds": {"type": "integer"}
            }
        },
        "RotateSecretRequest": {
            "type": "object",
            "required": ["newSecret"],
            "properties": {
                "newSecret": {"type": "string"},
                "reason": {"type": "string"}
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
                "pagination": {"type": "object"},
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
