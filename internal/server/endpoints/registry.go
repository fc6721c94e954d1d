package endpoints

import (
	"github.com/seforimlab/folio/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},

		// Ingestion endpoints
		&IngestEndpoint{},

		// Job endpoints
		&ListJobsEndpoint{},
		&GetJobEndpoint{},
		&CleanupJobsEndpoint{},

		// Swagger/OpenAPI endpoints
		&SwaggerEndpoint{},
	}
}
