// Package config provides application configuration from environment
// variables.
//
// # Configuration Structure
//
// SAML trust settings:
//
//	SAML_ENTRYPOINT="https://idp.example.com/sso"   # required
//	SAML_ENTITY_ID="https://bridge.example.com"     # required
//	SAML_IDP_CERT="/etc/samlbridge/idp.pem"         # required, inline PEM or path
//	SAML_IDP_ISSUER="https://idp.example.com"
//	SAML_CALLBACK_URL="https://bridge.example.com/"
//	SAML_META_ALIAS="/realm/idp"
//	SAML_NAMEID_FORMAT=""
//
// Token settings:
//
//	JWT_SECRET="..."           # required, at least 16 bytes
//	JWT_ISSUER="samlbridge"
//	JWT_AUDIENCE=""
//	TOKEN_TTL="1h"
//
// Application hand-off:
//
//	APP_REDIRECT_URL="https://app.example.com"      # required
//	CALLBACK_PATH="/"
//
// Server settings:
//
//	BRIDGE_HOST="0.0.0.0"
//	BRIDGE_PORT="8080"
//	BRIDGE_HEALTH_PORT="9090"
//	BRIDGE_READ_TIMEOUT="15s"
//	BRIDGE_WRITE_TIMEOUT="15s"
//	BRIDGE_SHUTDOWN_TIMEOUT="30s"
//
// Store settings:
//
//	BRIDGE_STORE_TYPE="memory"         # memory or postgres
//	BRIDGE_POSTGRES_URL=""
//	BRIDGE_REDIS_URL=""                # enables shared replay cache
//	BRIDGE_REPLAY_TTL="10m"
//
// Observability settings:
//
//	BRIDGE_LOG_LEVEL="info"
//	BRIDGE_METRICS_ENABLED="true"
//	BRIDGE_OTEL_ENABLED="false"
//	BRIDGE_OTEL_ENDPOINT="localhost:4317"
package config
