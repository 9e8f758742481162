package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRouter wires every route onto a fresh engine.
func SetupRouter(h *Handler, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware(log))
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		// intake sources
		api.POST("/external/transactions", h.IngestTransaction)
		api.POST("/webhooks/moma", h.MomaWebhook)

		users := api.Group("/users")
		{
			users.POST("", h.CreateUser)
			users.GET("/:id", h.GetUser)
			users.PUT("/:id/profile", h.UpdateProfile)
			users.PUT("/:id/card", h.LinkCard)
			users.DELETE("/:id/card", h.UnlinkCard)
			users.GET("/:id/transactions", h.ListTransactions)
			users.POST("/:id/referral", h.UseReferral)
			users.POST("/:id/scan", h.ScanQR)
			users.POST("/:id/purchases", h.ManualPurchase)
			users.GET("/:id/notifications", h.ListNotifications)
			users.POST("/:id/notifications/:nid/read", h.MarkNotificationRead)
		}

		api.GET("/machines", h.ListMachines)
		api.PUT("/machines/:id/status", h.UpdateMachineStatus)

		rewards := api.Group("/rewards")
		{
			rewards.GET("", h.ListRewards)
			rewards.GET("/:id", h.GetReward)
			rewards.POST("/:id/redeem", h.Redeem)
		}

		api.GET("/leaderboard/suburbs", h.SuburbLeaderboard)
		seasons := api.Group("/seasons")
		{
			seasons.GET("", h.ListSeasons)
			seasons.GET("/current", h.CurrentSeason)
			seasons.GET("/:id/leaderboard", h.SeasonLeaderboard)
		}

		admin := api.Group("/admin")
		{
			admin.GET("/external/unprocessed", h.ListUnprocessed)
			admin.POST("/external/:id/match", h.ManualMatch)
			admin.POST("/external/import-csv", h.ImportCSV)

			admin.GET("/sync/status", h.SyncStatus)
			admin.POST("/sync/start", h.SyncStart)
			admin.POST("/sync/stop", h.SyncStop)
			admin.POST("/sync/run", h.SyncRun)

			admin.POST("/redemptions/claim", h.ClaimCode)
			admin.POST("/rewards", h.CreateReward)
			admin.POST("/reconcile", h.Reconcile)
			admin.GET("/stats", h.Stats)
			admin.GET("/users", h.ListUsers)
			admin.POST("/users/:id/streak-reset", h.ResetStreakReward)
			admin.POST("/users/:id/bonus", h.GrantBonus)
			admin.POST("/notifications", h.SendNotifications)
			admin.POST("/machines", h.RegisterMachine)
		}
	}

	r.GET("/health", h.health)

	return r
}
