// Package docs registers the OpenAPI description served at /swagger when
// SWAGGER_ENABLED is set. Regenerate with `swag init -g internal/http/router.go
// -o internal/http/docs` after changing handler annotations.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "paths": {
        "/conversations": {
            "get": {"tags": ["Conversations"], "summary": "List conversations (paginated)", "operationId": "listConversations",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListConversationsResponse"}}}},
            "post": {"tags": ["Conversations"], "summary": "Start a conversation", "operationId": "startConversation",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.StartConversationRequest"}}],
                "responses": {
                    "200": {"description": "Existing conversation"},
                    "201": {"description": "Created"},
                    "403": {"description": "Not mutual or blocked", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Match not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }}
        },
        "/conversations/{id}": {
            "delete": {"tags": ["Conversations"], "summary": "Hide a conversation", "operationId": "deleteConversation",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}}
        },
        "/conversations/{id}/mute": {
            "put": {"tags": ["Conversations"], "summary": "Mute or unmute a conversation", "operationId": "muteConversation",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.MuteRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}}
        },
        "/conversations/{id}/messages": {
            "get": {"tags": ["Messages"], "summary": "Message history (paginated)", "operationId": "listMessages",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}}
        },
        "/conversations/{id}/photos": {
            "post": {"tags": ["Messages"], "summary": "Send a photo message", "operationId": "sendPhoto",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "file", "name": "photo", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "503": {"description": "Media store unavailable"}}}
        },
        "/conversations/{id}/voice": {
            "post": {"tags": ["Messages"], "summary": "Send a voice message", "operationId": "sendVoice",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "file", "name": "audio", "in": "formData", "required": true},
                    {"type": "number", "name": "duration", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created"}}}
        },
        "/messages/{id}/save": {
            "post": {"tags": ["Messages"], "summary": "Toggle a message bookmark", "operationId": "saveMessage",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/messages/{id}/report": {
            "post": {"tags": ["Messages"], "summary": "Report a message", "operationId": "reportMessage",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ReportRequest"}}
                ],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Already reported"}}}
        },
        "/blocks": {
            "get": {"tags": ["Blocks"], "summary": "List active blocks", "operationId": "listBlocks",
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Blocks"], "summary": "Block a user", "operationId": "blockUser",
                "parameters": [{"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.BlockRequest"}}],
                "responses": {"201": {"description": "Created"}}}
        },
        "/blocks/{userId}": {
            "delete": {"tags": ["Blocks"], "summary": "Unblock a user", "operationId": "unblockUser",
                "parameters": [{"type": "string", "name": "userId", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}}
        },
        "/games": {
            "get": {"tags": ["Games"], "summary": "List game families", "operationId": "listFamilies",
                "responses": {"200": {"description": "OK"}}}
        },
        "/sessions/{id}": {
            "get": {"tags": ["Games"], "summary": "Session snapshot", "operationId": "getSession",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "410": {"description": "Invitation expired"}}}
        },
        "/sessions/{id}/voice-notes": {
            "get": {"tags": ["Games"], "summary": "Discussion clips of a session", "operationId": "listVoiceNotes",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Games"], "summary": "Post a discussion clip", "operationId": "uploadVoiceNote",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "file", "name": "audio", "in": "formData", "required": true},
                    {"type": "number", "name": "duration", "in": "formData", "required": true}
                ],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Session not finished"}}}
        },
        "/sessions/{id}/responses/{index}": {
            "post": {"tags": ["Games"], "summary": "Answer an async question with a voice clip", "operationId": "submitResponse",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "name": "index", "in": "path", "required": true},
                    {"type": "string", "name": "Idempotency-Key", "in": "header"},
                    {"type": "file", "name": "audio", "in": "formData", "required": true},
                    {"type": "number", "name": "duration", "in": "formData", "required": true},
                    {"type": "string", "name": "transcript", "in": "formData"}
                ],
                "responses": {"201": {"description": "Created"}, "409": {"description": "Already answered"}, "410": {"description": "Deadline passed"}}}
        },
        "/compatibility/{partnerId}": {
            "get": {"tags": ["Games"], "summary": "Compatibility profile with a match", "operationId": "compatibility",
                "parameters": [{"type": "string", "name": "partnerId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "403": {"description": "Not matched"}}}
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {
            "request_id": {"type": "string"}, "code": {"type": "string", "example": "notFound"}, "message": {"type": "string"}}},
        "handlers.Pagination": {"type": "object", "properties": {
            "page": {"type": "integer"}, "page_size": {"type": "integer"}, "total": {"type": "integer"},
            "total_pages": {"type": "integer"}, "has_next": {"type": "boolean"}}},
        "handlers.ListConversationsResponse": {"type": "object", "properties": {
            "conversations": {"type": "array", "items": {"type": "object"}},
            "pagination": {"$ref": "#/definitions/handlers.Pagination"}}},
        "handlers.StartConversationRequest": {"type": "object", "required": ["matchId"], "properties": {"matchId": {"type": "string"}}},
        "handlers.MuteRequest": {"type": "object", "properties": {"muted": {"type": "boolean"}}},
        "handlers.ReportRequest": {"type": "object", "required": ["reason"], "properties": {"reason": {"type": "string", "maxLength": 64}}},
        "handlers.BlockRequest": {"type": "object", "required": ["userId"], "properties": {
            "userId": {"type": "string"}, "reason": {"type": "string"}, "expiresAt": {"type": "string", "format": "date-time"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Dating Realtime API",
	Description:      "REST surface of the realtime dating backend. Live chat and games run over the /ws websocket.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
