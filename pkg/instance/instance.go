package instance

import "github.com/sacrednumerology/sacred-backend/pkg/env"

// GetID names the running process for logs and lock diagnostics. Heroku style
// dyno names win over the container hostname.
func GetID() string {
	return env.First("local", "DYNO", "WORKER_ID", "HOSTNAME")
}
