package handler

import (
	"net/http"
	"strconv"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/models"
	"taskmate/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Storage is the disk-backed image store, wired in by main.
var Storage *storage.Store

// region --- DTOs ---

// ProfileResponse is the public identity projection of a user.
type ProfileResponse struct {
	UserID    uint   `json:"user_id" example:"1"`
	Username  string `json:"username" example:"testuser"`
	Name      string `json:"name" example:"Test User"`
	AvatarURI string `json:"avatar_uri"`
}

// AvatarInput carries a base64-encoded image, optionally as a data URI.
type AvatarInput struct {
	Data string `json:"data" binding:"required"`
}

func newProfileResponse(user models.User) ProfileResponse {
	return ProfileResponse{
		UserID:    user.ID,
		Username:  user.Username,
		Name:      user.Name,
		AvatarURI: user.AvatarURI,
	}
}

// endregion

// GetProfile godoc
// @Summary      Get a user's public profile
// @Description  Works without a token so profile links can be shared. A user who blocked the viewer is reported as not found.
// @Tags         profiles
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  ProfileResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /profiles/{id} [get]
func GetProfile(c *gin.Context) {
	targetUserID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if viewerID, ok := c.Get("userID"); ok {
		var count int64
		database.DB.Model(&models.BlockedUser{}).
			Where("blocker_id = ? AND blocked_id = ?", uint(targetUserID), viewerID.(uint)).
			Count(&count)
		if count > 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
	}

	var user models.User
	if err := database.DB.First(&user, uint(targetUserID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, newProfileResponse(user))
}

// GetProfiles godoc
// @Summary      Get public profiles by id list
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Param        ids  query     string  true  "Comma-separated user IDs"
// @Success      200  {array}   ProfileResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /profiles [get]
func GetProfiles(c *gin.Context) {
	ids, ok := parseIDList(c.Query("ids"))
	if !ok || len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "An 'ids' query parameter is required"})
		return
	}

	var users []models.User
	if err := database.DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profiles"})
		return
	}

	responses := make([]ProfileResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, newProfileResponse(user))
	}

	c.JSON(http.StatusOK, responses)
}

// SearchProfiles godoc
// @Summary      Search for users
// @Description  Searches for users by username with pagination.
// @Tags         profiles
// @Produce      json
// @Security     BearerAuth
// @Param        q     query     string  false  "Search query for username"
// @Param        page  query     int     false  "Page number" default(1)
// @Param        limit query     int     false  "Items per page" default(10)
// @Success      200   {object}  PaginatedResponse[ProfileResponse]
// @Failure      401   {object}  ErrorResponse
// @Router       /profiles/search [get]
func SearchProfiles(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	searchQuery := c.Query("q")
	page, limit := GetPaginationParams(c)

	query := database.DB.Model(&models.User{}).Where("id <> ?", viewerID.(uint))
	if searchQuery != "" {
		query = query.Where("username ILIKE ?", "%"+searchQuery+"%")
	}

	result, err := Paginate[models.User](query, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve users"})
		return
	}

	responses := make([]ProfileResponse, 0, len(result.Data))
	for _, user := range result.Data {
		responses = append(responses, newProfileResponse(user))
	}

	c.JSON(http.StatusOK, NewPaginatedResponse(responses, result.Meta.TotalItems, page, limit))
}

// UploadAvatar godoc
// @Summary      Upload the authenticated user's avatar
// @Description  Stores a base64-encoded image and updates the profile's avatar URI.
// @Tags         profiles
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body AvatarInput true "Base64 image"
// @Success      200  {object}  ProfileResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /profiles/me/avatar [post]
func UploadAvatar(c *gin.Context) {
	userID, _ := c.Get("userID")

	var input AvatarInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := database.DB.First(&user, userID.(uint)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	url, err := Storage.SaveBase64Image("avatar-"+strconv.FormatUint(uint64(user.ID), 10), input.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data"})
		return
	}

	if err := database.DB.Model(&user).Update("avatar_uri", url).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	user.AvatarURI = url

	response := newProfileResponse(user)

	// Friends keep a cached copy of the profile; let them know it changed.
	audience := append(friendAudience(user.ID), user.ID)
	broadcastChange("profiles", "UPDATE", response, nil, audience)

	c.JSON(http.StatusOK, response)
}
