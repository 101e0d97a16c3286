package api

import (
	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/scheduler"
	"github.com/knosm/pixisync/app/settings"
)

// DispatcherInterface is the slice of the dispatcher the API needs: manual
// triggers and schedule reloads.
type DispatcherInterface interface {
	Trigger(collectType string) (*scheduler.Job, error)
	Refresh()
}

type Handler struct {
	artworkRepo database.ArtworkRepository
	followRepo  database.FollowRepository
	logRepo     database.CollectionLogRepository
	schedRepo   database.SchedulerConfigRepository
	settings    *settings.Store
	dispatcher  DispatcherInterface
}
