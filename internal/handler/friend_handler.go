package handler

import (
	"errors"
	"net/http"
	"strconv"
	"taskmate/backend/internal/database"
	"taskmate/backend/internal/models"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// region --- DTOs ---

// FriendRequestResponse is the row shape of a friend request.
type FriendRequestResponse struct {
	SenderID   uint                       `json:"sender_id"`
	ReceiverID uint                       `json:"receiver_id"`
	Status     models.FriendRequestStatus `json:"status"`
	CreatedAt  time.Time                  `json:"created_at"`
}

// FriendResponse is one direction of an accepted friendship.
type FriendResponse struct {
	UserID    uint      `json:"user_id"`
	FriendID  uint      `json:"friend_id"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedUserResponse is the row shape of a directed block.
type BlockedUserResponse struct {
	BlockerID uint      `json:"blocker_id"`
	BlockedID uint      `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

func newRequestResponse(r models.FriendRequest) FriendRequestResponse {
	return FriendRequestResponse{
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt,
	}
}

func newFriendResponse(f models.Friend) FriendResponse {
	return FriendResponse{UserID: f.UserID, FriendID: f.FriendID, CreatedAt: f.CreatedAt}
}

// endregion

// GetFriends godoc
// @Summary      List the authenticated user's friends
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   FriendResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /friends [get]
func GetFriends(c *gin.Context) {
	viewerID, _ := c.Get("userID")

	var friends []models.Friend
	if err := database.DB.Where("user_id = ?", viewerID).Find(&friends).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch friends"})
		return
	}

	responses := make([]FriendResponse, 0, len(friends))
	for _, f := range friends {
		responses = append(responses, newFriendResponse(f))
	}

	c.JSON(http.StatusOK, responses)
}

// GetFriendRequests godoc
// @Summary      List friend requests
// @Description  Fetches friend requests involving the authenticated user, filtered by direction and status.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        direction query     string  false  "Filter by direction (incoming, outgoing)"
// @Param        status    query     string  false  "Filter by status (pending, accepted, rejected)"
// @Success      200       {array}   FriendRequestResponse
// @Failure      401       {object}  ErrorResponse
// @Router       /friends/requests [get]
func GetFriendRequests(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	statusFilter := c.Query("status")
	directionFilter := c.Query("direction")

	query := database.DB

	switch directionFilter {
	case "incoming":
		query = query.Where("receiver_id = ?", viewerID)
	case "outgoing":
		query = query.Where("sender_id = ?", viewerID)
	default:
		query = query.Where("sender_id = ? OR receiver_id = ?", viewerID, viewerID)
	}

	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}

	var requests []models.FriendRequest
	if err := query.Find(&requests).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch requests"})
		return
	}

	responses := make([]FriendRequestResponse, 0, len(requests))
	for _, r := range requests {
		responses = append(responses, newRequestResponse(r))
	}

	c.JSON(http.StatusOK, responses)
}

// SendFriendRequest godoc
// @Summary      Send friend request
// @Description  Sends a friend request to another user. A previously rejected request to the same receiver, or a block in either direction, forbids a new one.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Receiver User ID"
// @Success      201  {object}  FriendRequestResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse "Blocked or previously rejected"
// @Failure      404  {object}  ErrorResponse "Receiver not found"
// @Failure      409  {object}  ErrorResponse "Request already exists"
// @Router       /friends/requests/{id} [post]
func SendFriendRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	receiverID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid receiver ID"})
		return
	}

	if viewerID.(uint) == uint(receiverID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send request to yourself"})
		return
	}

	var receiver models.User
	if err := database.DB.First(&receiver, uint(receiverID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Receiver not found"})
		return
	}

	// A block in either direction forbids the request.
	var blockCount int64
	database.DB.Model(&models.BlockedUser{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			receiverID, viewerID, viewerID, receiverID).
		Count(&blockCount)
	if blockCount > 0 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot send a request to this user"})
		return
	}

	var existing models.FriendRequest
	err = database.DB.Where("sender_id = ? AND receiver_id = ?", viewerID, receiverID).First(&existing).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		if existing.Status == models.RequestRejected {
			c.JSON(http.StatusForbidden, gin.H{"error": "A previous request was rejected"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": "Request already exists"})
		return
	}

	request := models.FriendRequest{
		SenderID:   viewerID.(uint),
		ReceiverID: uint(receiverID),
		Status:     models.RequestPending,
	}
	if err := database.DB.Create(&request).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create request"})
		return
	}

	response := newRequestResponse(request)
	broadcastChange("friend_requests", "INSERT", response, nil, []uint{request.SenderID, request.ReceiverID})

	c.JSON(http.StatusCreated, response)
}

// AcceptFriendRequest godoc
// @Summary      Accept friend request
// @Description  Accepts a pending request and creates the friend rows for both users.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Sender User ID"
// @Success      200  {object}  FriendRequestResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /friends/requests/{id}/accept [post]
func AcceptFriendRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	senderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sender ID"})
		return
	}

	var request models.FriendRequest
	err = database.DB.Where("sender_id = ? AND receiver_id = ? AND status = ?",
		senderID, viewerID, models.RequestPending).First(&request).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
		return
	}

	forward := models.Friend{UserID: request.ReceiverID, FriendID: request.SenderID}
	backward := models.Friend{UserID: request.SenderID, FriendID: request.ReceiverID}

	// Accepting must flip the request and create both friend rows together.
	tx := database.DB.Begin()
	if err := tx.Model(&request).Update("status", models.RequestAccepted).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept request"})
		return
	}
	if err := tx.Create(&forward).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create friendship"})
		return
	}
	if err := tx.Create(&backward).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create friendship"})
		return
	}
	tx.Commit()

	request.Status = models.RequestAccepted
	response := newRequestResponse(request)

	both := []uint{request.SenderID, request.ReceiverID}
	broadcastChange("friend_requests", "UPDATE", response, nil, both)
	broadcastChange("friends", "INSERT", newFriendResponse(forward), nil, []uint{forward.UserID})
	broadcastChange("friends", "INSERT", newFriendResponse(backward), nil, []uint{backward.UserID})

	c.JSON(http.StatusOK, response)
}

// RejectFriendRequest godoc
// @Summary      Reject friend request
// @Description  Rejects a pending request. The row is kept so the sender cannot re-request.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Sender User ID"
// @Success      200  {object}  FriendRequestResponse
// @Failure      404  {object}  ErrorResponse "Request not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /friends/requests/{id}/reject [post]
func RejectFriendRequest(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	senderID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid sender ID"})
		return
	}

	var request models.FriendRequest
	err = database.DB.Where("sender_id = ? AND receiver_id = ? AND status = ?",
		senderID, viewerID, models.RequestPending).First(&request).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pending request not found"})
		return
	}

	if err := database.DB.Model(&request).Update("status", models.RequestRejected).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reject request"})
		return
	}

	request.Status = models.RequestRejected
	response := newRequestResponse(request)
	broadcastChange("friend_requests", "UPDATE", response, nil, []uint{request.SenderID, request.ReceiverID})

	c.JSON(http.StatusOK, response)
}

// RemoveFriend godoc
// @Summary      Remove a friend
// @Description  Deletes both directions of the friendship and the accepted request row, so either user may request again later.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Friend User ID"
// @Success      200  {object}  map[string]string "{"message": "Friend removed"}"
// @Failure      404  {object}  ErrorResponse "Friendship not found"
// @Failure      500  {object}  ErrorResponse
// @Router       /friends/{id} [delete]
func RemoveFriend(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	friendID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid friend ID"})
		return
	}

	var friend models.Friend
	if err := database.DB.Where("user_id = ? AND friend_id = ?", viewerID, friendID).First(&friend).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friendship not found"})
		return
	}

	// Snapshot the request rows before they disappear so the deletes can be
	// announced.
	var requests []models.FriendRequest
	database.DB.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		viewerID, friendID, friendID, viewerID).Find(&requests)

	tx := database.DB.Begin()
	if err := tx.Where("(user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
		viewerID, friendID, friendID, viewerID).Delete(&models.Friend{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove friend"})
		return
	}
	if err := tx.Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		viewerID, friendID, friendID, viewerID).Delete(&models.FriendRequest{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove friend"})
		return
	}
	tx.Commit()

	forward := FriendResponse{UserID: viewerID.(uint), FriendID: uint(friendID)}
	backward := FriendResponse{UserID: uint(friendID), FriendID: viewerID.(uint)}
	broadcastChange("friends", "DELETE", nil, forward, []uint{forward.UserID})
	broadcastChange("friends", "DELETE", nil, backward, []uint{backward.UserID})
	for _, r := range requests {
		broadcastChange("friend_requests", "DELETE", nil, newRequestResponse(r), []uint{r.SenderID, r.ReceiverID})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}

// BlockUser godoc
// @Summary      Block a user
// @Description  Creates a directed block and drops any pending request from the blocked user.
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "User ID to block"
// @Success      201  {object}  BlockedUserResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      409  {object}  ErrorResponse "Already blocked"
// @Router       /friends/block/{id} [post]
func BlockUser(c *gin.Context) {
	viewerID, _ := c.Get("userID")
	blockedID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	if viewerID.(uint) == uint(blockedID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot block yourself"})
		return
	}

	var existing models.BlockedUser
	err = database.DB.Where("blocker_id = ? AND blocked_id = ?", viewerID, blockedID).First(&existing).Error
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already blocked"})
		return
	}

	block := models.BlockedUser{BlockerID: viewerID.(uint), BlockedID: uint(blockedID)}

	// Snapshot any pending request from the blocked user so its delete can be
	// announced.
	var dropped []models.FriendRequest
	database.DB.Where("sender_id = ? AND receiver_id = ? AND status = ?",
		blockedID, viewerID, models.RequestPending).Find(&dropped)

	tx := database.DB.Begin()
	if err := tx.Create(&block).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}
	if err := tx.Where("sender_id = ? AND receiver_id = ? AND status = ?",
		blockedID, viewerID, models.RequestPending).Delete(&models.FriendRequest{}).Error; err != nil {
		tx.Rollback()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to block user"})
		return
	}
	tx.Commit()

	response := BlockedUserResponse{BlockerID: block.BlockerID, BlockedID: block.BlockedID, CreatedAt: block.CreatedAt}
	broadcastChange("blocked_users", "INSERT", response, nil, []uint{block.BlockerID})
	for _, r := range dropped {
		broadcastChange("friend_requests", "DELETE", nil, newRequestResponse(r), []uint{r.SenderID, r.ReceiverID})
	}

	c.JSON(http.StatusCreated, response)
}

// GetBlockedUsers godoc
// @Summary      List users blocked by the authenticated user
// @Tags         friends
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   BlockedUserResponse
// @Failure      401  {object}  ErrorResponse
// @Router       /friends/blocked [get]
func GetBlockedUsers(c *gin.Context) {
	viewerID, _ := c.Get("userID")

	var blocks []models.BlockedUser
	if err := database.DB.Where("blocker_id = ?", viewerID).Find(&blocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch blocked users"})
		return
	}

	responses := make([]BlockedUserResponse, 0, len(blocks))
	for _, b := range blocks {
		responses = append(responses, BlockedUserResponse{BlockerID: b.BlockerID, BlockedID: b.BlockedID, CreatedAt: b.CreatedAt})
	}

	c.JSON(http.StatusOK, responses)
}
