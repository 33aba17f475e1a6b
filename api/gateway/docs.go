// Package gateway holds the OpenAPI document served under /swagger/.
//
// Regenerate after changing handler annotations:
//
//	swag init -g internal/gateway/http/router.go -o api/gateway --outputTypes go --packageName gateway
package gateway

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/modelgate"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/token": {
            "post": {
                "description": "Exchanges a pre-shared client secret for a short-lived bearer token.\nFailed attempts are audited as DENIED_AUTH and rate limited per IP.",
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Token Endpoint",
                "parameters": [
                    {
                        "description": "Client secret",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/gatewaysdk.TokenRequest"}
                    }
                ],
                "responses": {
                    "200": {
                        "description": "access_token, token_type, expires_in, scope",
                        "schema": {"$ref": "#/definitions/gatewaysdk.TokenResponse"},
                        "headers": {
                            "Cache-Control": {"type": "string", "description": "no-store"},
                            "Pragma": {"type": "string", "description": "no-cache"}
                        }
                    },
                    "400": {"description": "error, error_description", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "401": {"description": "error, error_description", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "429": {"description": "error, error_description, retry_after", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "500": {"description": "error, error_description", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}}
                }
            }
        },
        "/predict": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Runs the verified model on one feature vector. Every request past input validation\nproduces exactly one audit event.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Inference"],
                "summary": "Predict",
                "parameters": [
                    {
                        "description": "Feature vector",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/gatewaysdk.PredictRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "prediction, probabilities, model_version, timestamp", "schema": {"$ref": "#/definitions/gatewaysdk.PredictResponse"}},
                    "400": {"description": "invalid_request", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "401": {"description": "invalid_token (DENIED_AUTH)", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "403": {"description": "insufficient_scope (DENIED_AUTH)", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "429": {
                        "description": "quota_exceeded (DENIED_QUOTA), remaining, retry_after",
                        "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"},
                        "headers": {"Retry-After": {"type": "integer", "description": "seconds until the quota window resets"}}
                    },
                    "500": {"description": "server_error (ERROR)", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "503": {"description": "model_untrusted (DENIED_UNTRUSTED_MODEL) or dependency_unavailable (ERROR)", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}}
                }
            }
        },
        "/model/info": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Version, fingerprint and trust state of the loaded model artifact.",
                "produces": ["application/json"],
                "tags": ["Inference"],
                "summary": "Model Info",
                "responses": {
                    "200": {"description": "version, fingerprint, trusted, loaded_at", "schema": {"$ref": "#/definitions/gatewaysdk.ModelInfoResponse"}},
                    "401": {"description": "invalid_token", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}},
                    "403": {"description": "insufficient_scope", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "description": "Liveness probe endpoint returning basic service health status, uptime, and version information\nThis endpoint always returns 200 OK if the service is running",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Health Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version", "schema": {"$ref": "#/definitions/gatewaysdk.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "description": "Readiness probe endpoint returning service health status and checks for critical dependencies\nIncludes the counter store, the audit sink and whether a trusted model is serving",
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {"description": "status, uptime, version, checks", "schema": {"$ref": "#/definitions/gatewaysdk.HealthResponse"}},
                    "503": {"description": "status, uptime, version, checks - service not ready", "schema": {"$ref": "#/definitions/gatewaysdk.HealthResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "description": "Prometheus text exposition. Requires the static metrics bearer when one is configured.",
                "produces": ["text/plain"],
                "tags": ["Health"],
                "summary": "Prometheus Metrics",
                "responses": {
                    "200": {"description": "metrics", "schema": {"type": "string"}},
                    "401": {"description": "invalid_token", "schema": {"$ref": "#/definitions/gatewaysdk.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "gatewaysdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "error_description": {"type": "string"},
                "reason": {"type": "string"},
                "remaining": {"type": "integer"},
                "retry_after": {"type": "integer"}
            }
        },
        "gatewaysdk.TokenRequest": {
            "type": "object",
            "properties": {
                "secret": {"type": "string"}
            }
        },
        "gatewaysdk.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "expires_in": {"type": "integer"},
                "scope": {"type": "string"},
                "token_type": {"type": "string"}
            }
        },
        "gatewaysdk.PredictRequest": {
            "type": "object",
            "properties": {
                "features": {"type": "array", "items": {"type": "number"}}
            }
        },
        "gatewaysdk.PredictResponse": {
            "type": "object",
            "properties": {
                "model_version": {"type": "string"},
                "prediction": {"type": "integer"},
                "probabilities": {"type": "array", "items": {"type": "number"}},
                "timestamp": {"type": "string"}
            }
        },
        "gatewaysdk.ModelInfoResponse": {
            "type": "object",
            "properties": {
                "checked_at": {"type": "string"},
                "fingerprint": {"type": "string"},
                "loaded_at": {"type": "string"},
                "reason": {"type": "string"},
                "trusted": {"type": "boolean"},
                "version": {"type": "string"}
            }
        },
        "gatewaysdk.HealthChecks": {
            "type": "object",
            "properties": {
                "audit_sink": {"type": "string"},
                "counter_store": {"type": "string"},
                "model": {"type": "string"}
            }
        },
        "gatewaysdk.HealthResponse": {
            "type": "object",
            "properties": {
                "checks": {"$ref": "#/definitions/gatewaysdk.HealthChecks"},
                "status": {"type": "string"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Modelgate Inference Gateway API",
	Description:      "Authenticated, rate-limited and integrity-checked access to a machine-learning model.\n\nTokens are HS256 JWTs issued by POST /token in exchange for a pre-shared secret.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
