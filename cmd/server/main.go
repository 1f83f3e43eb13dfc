package main

import (
	"fmt"
	"log"
	"net/http"

	"taskmate/backend/internal/auth"
	"taskmate/backend/internal/config"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/handler"
	"taskmate/backend/internal/storage"

	"github.com/gin-gonic/gin"

	// Swagger imports
	_ "taskmate/backend/docs" // This is important for swag to find the generated docs

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
}

// @title           Taskmate API
// @version         1.0
// @description     This is the API for the Taskmate service.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	// Connect to the database
	database.Connect(config.AppConfig.DatabaseURL)

	store, err := storage.NewStore(config.AppConfig.UploadsDir, config.AppConfig.PublicBaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize uploads storage: %v", err)
	}
	handler.Storage = store

	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Uploaded images are public
	router.Static("/uploads", config.AppConfig.UploadsDir)

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", handler.RegisterUser)
			authRoutes.POST("/login", handler.LoginUser)
			authRoutes.POST("/ready", auth.AuthMiddleware(), handler.MarkReady)
		}

		// Change feed (token is carried as a query parameter)
		apiV1.GET("/realtime", handler.Realtime)

		// A single profile is readable from a shared link without signing in;
		// a token, when present, lets the handler honor blocks.
		apiV1.GET("/profiles/:id", auth.OptionalAuthMiddleware(), handler.GetProfile)

		// Profile routes (protected)
		profileRoutes := apiV1.Group("/profiles")
		profileRoutes.Use(auth.AuthMiddleware())
		{
			profileRoutes.GET("", handler.GetProfiles)
			profileRoutes.GET("/search", handler.SearchProfiles) // Must be before /:id
			profileRoutes.POST("/me/avatar", handler.UploadAvatar)
		}

		// Friend routes (protected)
		friendRoutes := apiV1.Group("/friends")
		friendRoutes.Use(auth.AuthMiddleware())
		{
			friendRoutes.GET("", handler.GetFriends)
			friendRoutes.GET("/requests", handler.GetFriendRequests)
			friendRoutes.POST("/requests/:id", handler.SendFriendRequest)
			friendRoutes.POST("/requests/:id/accept", handler.AcceptFriendRequest)
			friendRoutes.POST("/requests/:id/reject", handler.RejectFriendRequest)
			friendRoutes.GET("/blocked", handler.GetBlockedUsers)
			friendRoutes.POST("/block/:id", handler.BlockUser)
			friendRoutes.DELETE("/:id", handler.RemoveFriend)
		}

		// Task routes (protected)
		taskRoutes := apiV1.Group("/tasks")
		taskRoutes.Use(auth.AuthMiddleware())
		{
			taskRoutes.GET("", handler.GetTasks)
			taskRoutes.POST("", handler.CreateTask)
			taskRoutes.GET("/:id", handler.GetTask)
			taskRoutes.PUT("/:id", handler.UpdateTask)
			taskRoutes.DELETE("/:id", handler.DeleteTask)
			taskRoutes.PUT("/:id/assignees/:userID", handler.MarkTaskAssignee)
		}

		// Related-row fan-out routes (protected)
		relatedRoutes := apiV1.Group("")
		relatedRoutes.Use(auth.AuthMiddleware())
		{
			relatedRoutes.GET("/task-assignees", handler.GetTaskAssignees)
			relatedRoutes.GET("/task-tags", handler.GetTaskTags)
			relatedRoutes.GET("/task-dependencies", handler.GetTaskDependencies)
			relatedRoutes.GET("/milestones", handler.GetMilestones)
			relatedRoutes.GET("/milestone-assignees", handler.GetMilestoneAssignees)
			relatedRoutes.PUT("/milestones/:id/assignees/:userID", handler.MarkMilestoneAssignee)
		}

		// Message routes (protected)
		messageRoutes := apiV1.Group("/messages")
		messageRoutes.Use(auth.AuthMiddleware())
		{
			messageRoutes.GET("", handler.GetMessages)
			messageRoutes.POST("", handler.PostMessage)
		}
	}

	fmt.Printf("Server is running on %s\n", config.AppConfig.ServerAddr)
	fmt.Println("Swagger UI is available at /swagger/index.html")
	log.Fatal(router.Run(config.AppConfig.ServerAddr))
}
