package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Schedule Engine API",
        "description": "Exam and timetable generation runs with versioned apply and rollback.",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "ScheduleRuns", "description": "Generation run lifecycle"},
        {"name": "Schedules", "description": "Committed schedules per scope"},
        {"name": "Observability", "description": "Health, readiness and metrics"}
    ],
    "paths": {
        "/schedule-runs": {
            "post": {
                "tags": ["ScheduleRuns"],
                "summary": "Create a schedule generation run",
                "parameters": [
                    {"name": "start", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScheduleRunRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid configuration", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}": {
            "get": {
                "tags": ["ScheduleRuns"],
                "summary": "Get run detail",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}/progress": {
            "get": {
                "tags": ["ScheduleRuns"],
                "summary": "Get run progress",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ProgressEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}/start": {
            "post": {
                "tags": ["ScheduleRuns"],
                "summary": "Start a pending run",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run is not pending", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Too many active runs", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}/cancel": {
            "post": {
                "tags": ["ScheduleRuns"],
                "summary": "Cancel a pending or running run",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run already finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}/apply": {
            "post": {
                "tags": ["ScheduleRuns"],
                "summary": "Commit a succeeded run's schedule",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid state or version conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedule-runs/{id}/rollback": {
            "post": {
                "tags": ["ScheduleRuns"],
                "summary": "Restore the schedule an applied run replaced",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No rollback target or version conflict", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/{scope}": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Read the committed schedule of a scope",
                "parameters": [{"name": "scope", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/schedules/{scope}/previous": {
            "get": {
                "tags": ["Schedules"],
                "summary": "Read the rollback target of a scope",
                "parameters": [{"name": "scope", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No rollback target", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "TimeSlot": {
            "type": "object",
            "properties": {
                "day": {"type": "integer"},
                "index": {"type": "integer"}
            }
        },
        "Resource": {
            "type": "object",
            "required": ["id"],
            "properties": {
                "id": {"type": "string"},
                "capacity": {"type": "integer"},
                "availability": {"type": "array", "items": {"$ref": "#/definitions/TimeSlot"}}
            }
        },
        "Task": {
            "type": "object",
            "required": ["id", "duration", "rooms"],
            "properties": {
                "id": {"type": "string"},
                "subject": {"type": "string"},
                "cohorts": {"type": "array", "items": {"type": "string"}},
                "duration": {"type": "integer", "minimum": 1},
                "requiredCapacity": {"type": "integer"},
                "rooms": {"type": "array", "items": {"type": "string"}},
                "invigilators": {"type": "array", "items": {"type": "string"}},
                "invigilatorsRequired": {"type": "integer"},
                "conflicts": {"type": "array", "items": {"type": "string"}},
                "difficulty": {"type": "integer", "minimum": 0, "maximum": 10}
            }
        },
        "Budget": {
            "type": "object",
            "properties": {
                "timeLimitMs": {"type": "integer"},
                "maxSteps": {"type": "integer"},
                "generations": {"type": "integer"},
                "populationSize": {"type": "integer"},
                "stagnationLimit": {"type": "integer"},
                "mutationRate": {"type": "number"},
                "crossoverRate": {"type": "number"},
                "seed": {"type": "integer"},
                "hybridCspShare": {"type": "number"}
            }
        },
        "CreateScheduleRunRequest": {
            "type": "object",
            "required": ["scope", "grid", "tasks"],
            "properties": {
                "scope": {"type": "string"},
                "strategy": {"type": "string", "enum": ["CSP_BACKTRACK", "GENETIC", "HYBRID"]},
                "grid": {
                    "type": "object",
                    "properties": {
                        "days": {"type": "integer"},
                        "slotsPerDay": {"type": "integer"},
                        "morningSlots": {"type": "integer"}
                    }
                },
                "range": {
                    "type": "object",
                    "properties": {
                        "fromDay": {"type": "integer"},
                        "toDay": {"type": "integer"}
                    }
                },
                "rooms": {"type": "array", "items": {"$ref": "#/definitions/Resource"}},
                "invigilators": {"type": "array", "items": {"$ref": "#/definitions/Resource"}},
                "cohorts": {"type": "array", "items": {"$ref": "#/definitions/Resource"}},
                "tasks": {"type": "array", "items": {"$ref": "#/definitions/Task"}},
                "hardConstraints": {"type": "array", "items": {"type": "string"}},
                "softConstraints": {"type": "object", "additionalProperties": {"type": "number"}},
                "difficultyThreshold": {"type": "integer"},
                "maxDailyPerCohort": {"type": "integer"},
                "budget": {"$ref": "#/definitions/Budget"}
            }
        },
        "ProgressView": {
            "type": "object",
            "properties": {
                "runId": {"type": "string"},
                "status": {"type": "string"},
                "phase": {"type": "string"},
                "percent": {"type": "number"},
                "bestPenalty": {"type": "number"},
                "feasible": {"type": "boolean"},
                "placed": {"type": "integer"},
                "total": {"type": "integer"},
                "generation": {"type": "integer"},
                "updatedAt": {"type": "string", "format": "date-time"}
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
        },
        "ProgressEnvelope": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/ProgressView"},
                "error": {"$ref": "#/definitions/APIError"}
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
