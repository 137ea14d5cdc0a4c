package constants

// Static route constants
const (
	APIPrefix      = "/api"
	WebhookRoute   = "/api/v1/payments/webhook"
	HealthRoute    = "/healthz"
	MetricsRoute   = "/metrics"
	MonitorRoute   = "/monitor"
	DocsBasePath   = "/docs/api/"
	OpenAPISpecRel = "public/docs/v1/openapi.yml"
)
