package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/knosm/pixisync/app/database"
	"github.com/knosm/pixisync/app/settings"
)

func NewHandler(artworkRepo database.ArtworkRepository, followRepo database.FollowRepository,
	logRepo database.CollectionLogRepository, schedRepo database.SchedulerConfigRepository,
	settingsStore *settings.Store, dispatcher DispatcherInterface) *Handler {
	return &Handler{
		artworkRepo: artworkRepo,
		followRepo:  followRepo,
		logRepo:     logRepo,
		schedRepo:   schedRepo,
		settings:    settingsStore,
		dispatcher:  dispatcher,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.artworkRepo.Count(); err == nil {
		health["artworks"] = count
	}
	if count, err := h.followRepo.Count(); err == nil {
		health["follows"] = count
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{}

	artworks, err := h.artworkRepo.Count()
	if err != nil {
		slog.Error("Database error", "operation", "count_artworks", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	follows, err := h.followRepo.Count()
	if err != nil {
		slog.Error("Database error", "operation", "count_follows", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	stats["artworks"] = artworks
	stats["follows"] = follows

	if logs, err := h.logRepo.List(5, 0); err == nil {
		recent := make([]map[string]interface{}, 0, len(logs))
		for _, entry := range logs {
			recent = append(recent, logToMap(entry))
		}
		stats["recent_runs"] = recent
	}

	c.JSON(http.StatusOK, stats)
}

// APITriggerCollect enqueues a manual run of the named strategy. The run
// happens on the worker pool; the response only confirms the enqueue.
func (h *Handler) APITriggerCollect(c *gin.Context) {
	collectType := c.Param("type")

	job, err := h.dispatcher.Trigger(collectType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Manual collection triggered", "collect_type", collectType, "job_id", job.ID)
	c.JSON(http.StatusAccepted, gin.H{
		"status":       "queued",
		"collect_type": collectType,
		"job_id":       job.ID,
	})
}

func (h *Handler) APIListArtworks(c *gin.Context) {
	limit, offset := pagination(c)

	artworks, err := h.artworkRepo.List(limit, offset)
	if err != nil {
		slog.Error("Database error", "operation", "list_artworks", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	total, err := h.artworkRepo.Count()
	if err != nil {
		slog.Error("Database error", "operation", "count_artworks", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(artworks))
	for _, artwork := range artworks {
		items = append(items, artworkToMap(artwork))
	}

	c.JSON(http.StatusOK, gin.H{"artworks": items, "total": total})
}

func (h *Handler) APIListFollows(c *gin.Context) {
	limit, offset := pagination(c)

	follows, err := h.followRepo.List(limit, offset)
	if err != nil {
		slog.Error("Database error", "operation", "list_follows", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	total, err := h.followRepo.Count()
	if err != nil {
		slog.Error("Database error", "operation", "count_follows", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(follows))
	for _, follow := range follows {
		items = append(items, map[string]interface{}{
			"id":                 follow.ID,
			"user_id":            follow.UserID,
			"user_name":          follow.UserName,
			"avatar_url":         follow.AvatarURL,
			"first_collect_date": follow.FirstCollectDate,
			"last_collect_date":  follow.LastCollectDate,
			"last_artwork_date":  follow.LastArtworkDate,
		})
	}

	c.JSON(http.StatusOK, gin.H{"follows": items, "total": total})
}

func (h *Handler) APIListLogs(c *gin.Context) {
	limit, offset := pagination(c)

	logs, err := h.logRepo.List(limit, offset)
	if err != nil {
		slog.Error("Database error", "operation", "list_logs", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(logs))
	for _, entry := range logs {
		items = append(items, logToMap(entry))
	}

	c.JSON(http.StatusOK, gin.H{"logs": items})
}

func (h *Handler) APIListSchedulerConfigs(c *gin.Context) {
	configs, err := h.schedRepo.GetAll()
	if err != nil {
		slog.Error("Database error", "operation", "list_scheduler_configs", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	items := make([]map[string]interface{}, 0, len(configs))
	for _, config := range configs {
		items = append(items, map[string]interface{}{
			"collect_type":    config.CollectType,
			"cron_expression": config.CronExpression,
			"is_active":       config.IsActive,
			"last_run_time":   config.LastRunTime,
		})
	}

	c.JSON(http.StatusOK, gin.H{"configs": items})
}

func (h *Handler) APIUpdateSchedulerConfig(c *gin.Context) {
	collectType := c.Param("type")

	var body struct {
		CronExpression string `json:"cron_expression" binding:"required"`
		IsActive       bool   `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := cron.ParseStandard(body.CronExpression); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cron expression: " + err.Error()})
		return
	}

	existing, err := h.schedRepo.GetByType(collectType)
	if err != nil {
		slog.Error("Database error", "operation", "get_scheduler_config", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if existing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown collect type"})
		return
	}

	if err := h.schedRepo.UpdateCron(collectType, body.CronExpression, body.IsActive); err != nil {
		slog.Error("Database error", "operation", "update_scheduler_config", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	slog.Info("Scheduler config updated", "collect_type", collectType,
		"cron", body.CronExpression, "active", body.IsActive)
	c.JSON(http.StatusOK, gin.H{
		"collect_type":    collectType,
		"cron_expression": body.CronExpression,
		"is_active":       body.IsActive,
	})
}

func (h *Handler) APIRefreshScheduler(c *gin.Context) {
	h.dispatcher.Refresh()
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

func (h *Handler) APIGetSettings(c *gin.Context) {
	all, err := h.settings.All()
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	// Token material stays out of API responses.
	delete(all, settings.KeyAccessToken)
	delete(all, settings.KeyRefreshToken)

	c.JSON(http.StatusOK, gin.H{"settings": all})
}

// APIUpdateSettings accepts a JSON object of key/value pairs. The stored
// type follows the JSON type of each value.
func (h *Handler) APIUpdateSettings(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for key, value := range body {
		var err error
		switch v := value.(type) {
		case bool:
			err = h.settings.SetBool(key, v)
		case float64:
			if v == float64(int(v)) {
				err = h.settings.SetInt(key, int(v))
			} else {
				err = h.settings.SetFloat(key, v)
			}
		case string:
			err = h.settings.SetString(key, v)
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported value type for key " + key})
			return
		}
		if err != nil {
			slog.Error("Failed to store setting", "key", key, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"updated": len(body)})
}

func (h *Handler) APIInvalidateArtwork(c *gin.Context) {
	h.setArtworkValidity(c, false)
}

func (h *Handler) APIRestoreArtwork(c *gin.Context) {
	h.setArtworkValidity(c, true)
}

func (h *Handler) setArtworkValidity(c *gin.Context, valid bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artwork id"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	reason := body.Reason
	if !valid && reason == "" {
		reason = "Manually invalidated"
	}
	if valid {
		reason = ""
	}

	if err := h.artworkRepo.SetValid(id, valid, reason); err != nil {
		slog.Error("Database error", "operation", "set_artwork_validity", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "is_valid": valid})
}

func pagination(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}
	return perPage, (page - 1) * perPage
}

func artworkToMap(artwork database.Artwork) map[string]interface{} {
	return map[string]interface{}{
		"id":              artwork.ID,
		"illust_id":       artwork.IllustID,
		"page_index":      artwork.PageIndex,
		"page_count":      artwork.PageCount,
		"author_id":       artwork.AuthorID,
		"author_name":     artwork.AuthorName,
		"title":           artwork.Title,
		"url":             artwork.URL,
		"share_url":       artwork.ShareURL,
		"tags":            artwork.Tags,
		"is_r18":          artwork.IsR18,
		"type":            artwork.Type,
		"collect_type":    artwork.CollectType,
		"is_valid":        artwork.IsValid,
		"error_message":   artwork.ErrorMessage,
		"post_date":       artwork.PostDate,
		"rank":            artwork.Rank,
		"total_bookmarks": artwork.TotalBookmarks,
		"total_view":      artwork.TotalView,
		"last_updated_at": artwork.LastUpdatedAt,
	}
}

func logToMap(entry database.CollectionLog) map[string]interface{} {
	return map[string]interface{}{
		"id":             entry.ID,
		"log_type":       entry.LogType,
		"status":         entry.Status,
		"message":        entry.Message,
		"artworks_count": entry.ArtworksCount,
		"created_at":     entry.CreatedAt,
	}
}
