// internal/handlers/sync.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/licadmin-backend/internal/services"
	"github.com/javajoker/licadmin-backend/internal/utils"
)

type SyncHandler struct {
	syncService *services.SyncService
}

func NewSyncHandler(syncService *services.SyncService) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
	}
}

// POST /licenses/sync
// Kicks off a synchronization run in the background and returns
// immediately with the run identifier.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	runID, err := h.syncService.TriggerAsync()
	if err != nil {
		if errors.Is(err, services.ErrSyncAlreadyRunning) {
			utils.ConflictResponse(c, "A synchronization run is already in progress")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	if userID, ok := utils.GetUserIDFromContext(c); ok {
		logrus.WithFields(logrus.Fields{
			"run_id":  runID,
			"user_id": userID,
		}).Info("Manual sync triggered")
	}

	utils.AcceptedResponse(c, gin.H{
		"run_id": runID,
		"status": "running",
	})
}

// GET /licenses/sync/status
func (h *SyncHandler) GetSyncStatus(c *gin.Context) {
	status := h.syncService.Status()
	utils.SuccessResponse(c, gin.H{
		"sync": status,
	})
}

// POST /licenses/sync/release
// Manual recovery for a run stuck in the running state.
func (h *SyncHandler) ForceRelease(c *gin.Context) {
	released := h.syncService.ForceRelease()
	if !released {
		utils.ConflictResponse(c, "No synchronization run to release")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": "Synchronization lock released",
	})
}
