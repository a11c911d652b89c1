package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CRAMS API",
        "description": "Course registration and advising",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Registrations", "description": "Student submissions and the advisor roster"},
        {"name": "Review", "description": "Advisor decisions per course, in bulk or for a whole registration"},
        {"name": "Courses", "description": "Course catalog"},
        {"name": "Notifications", "description": "Per-user inbox"},
        {"name": "Users", "description": "Account administration"},
        {"name": "Authentication", "description": "Login and current profile"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "security": [],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Student self-registration",
                "security": [],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email or student number taken", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List every registration",
                "parameters": [
                    {"name": "screened", "in": "query", "type": "boolean"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Registrations"],
                "summary": "Submit a registration",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitRegistrationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Duplicate registration or schedule conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/me": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Get the caller's registration",
                "responses": {"200": {"description": "OK, data is null before the first submission", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations/export": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Download the registration roster",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]},
                    {"name": "screened", "in": "query", "type": "boolean"}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/registrations/conflicts": {
            "post": {
                "tags": ["Registrations"],
                "summary": "Check a selection for identical time slots",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ConflictCheckRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations/{id}": {
            "put": {
                "tags": ["Registrations"],
                "summary": "Replace the course selection",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitRegistrationRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Stale version or schedule conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/{id}/courses/{courseId}/approve": {
            "post": {
                "tags": ["Review"],
                "summary": "Approve one course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "courseId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations/{id}/courses/{courseId}/reject": {
            "post": {
                "tags": ["Review"],
                "summary": "Reject one course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "courseId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations/{id}/bulk-action": {
            "post": {
                "tags": ["Review"],
                "summary": "Apply one decision to several courses",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BulkDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid action", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/registrations/{id}/approve": {
            "post": {
                "tags": ["Review"],
                "summary": "Approve every course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/registrations/{id}/reject": {
            "post": {
                "tags": ["Review"],
                "summary": "Reject every course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "List catalog courses",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Courses"],
                "summary": "Create course",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertCourseRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/courses/{id}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Get course",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "put": {
                "tags": ["Courses"],
                "summary": "Update course",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpsertCourseRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Courses"],
                "summary": "Delete course",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "409": {"description": "Course is referenced by registrations", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "summary": "List the caller's notifications",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/mark-all-read": {
            "put": {
                "tags": ["Notifications"],
                "summary": "Mark every notification as read",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/{id}/read": {
            "put": {
                "tags": ["Notifications"],
                "summary": "Mark one notification as read",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/notifications/{id}": {
            "delete": {
                "tags": ["Notifications"],
                "summary": "Delete a notification",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deleted"}}
            }
        },
        "/notifications/send": {
            "post": {
                "tags": ["Notifications"],
                "summary": "Send a notification to a list of users",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SendNotificationRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/users": {
            "get": {
                "tags": ["Users"],
                "summary": "List users",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "role", "in": "query", "type": "string", "enum": ["STUDENT", "ADVISOR", "ADMIN"]},
                    {"name": "active", "in": "query", "type": "boolean"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Users"],
                "summary": "Create user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateUserRequest"}}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/users/directory": {
            "get": {
                "tags": ["Users"],
                "summary": "List active students or advisors",
                "parameters": [
                    {"name": "role", "in": "query", "required": true, "type": "string", "enum": ["STUDENT", "ADVISOR"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/users/{id}": {
            "delete": {
                "tags": ["Users"],
                "summary": "Deactivate user",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "Deactivated"}}
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "RegisterStudentRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 6},
                "full_name": {"type": "string"},
                "student_number": {"type": "string"}
            },
            "required": ["email", "password", "full_name", "student_number"]
        },
        "SubmitRegistrationRequest": {
            "type": "object",
            "properties": {
                "courses": {
                    "type": "array",
                    "items": {"type": "object", "properties": {"course_id": {"type": "string"}}}
                }
            },
            "required": ["courses"]
        },
        "ConflictCheckRequest": {
            "type": "object",
            "properties": {
                "course_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "feedback": {"type": "string"}
            }
        },
        "BulkDecisionRequest": {
            "type": "object",
            "properties": {
                "course_ids": {"type": "array", "items": {"type": "string"}},
                "action": {"type": "string", "enum": ["approve", "reject"]},
                "feedback": {"type": "string"}
            },
            "required": ["course_ids", "action"]
        },
        "TimeSlot": {
            "type": "object",
            "properties": {
                "day": {"type": "string"},
                "start": {"type": "string"},
                "end": {"type": "string"}
            }
        },
        "UpsertCourseRequest": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "name": {"type": "string"},
                "instructor": {"type": "string"},
                "limit": {"type": "integer"},
                "enrolled": {"type": "integer"},
                "prerequisites": {"type": "array", "items": {"type": "string"}},
                "times": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}}
            },
            "required": ["code", "name"]
        },
        "SendNotificationRequest": {
            "type": "object",
            "properties": {
                "recipients": {"type": "array", "items": {"type": "string"}},
                "title": {"type": "string"},
                "message": {"type": "string"}
            },
            "required": ["recipients", "title", "message"]
        },
        "CreateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "full_name": {"type": "string"},
                "role": {"type": "string", "enum": ["STUDENT", "ADVISOR", "ADMIN"]},
                "student_number": {"type": "string"}
            },
            "required": ["email", "password", "full_name", "role"]
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
