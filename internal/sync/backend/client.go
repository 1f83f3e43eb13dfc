// Package backend implements the typed access functions the stores call.
// Each function performs exactly one logical operation: validate the input,
// issue the request, validate the response. Nothing here retries or touches
// shared state; that belongs to the caller.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"taskmate/backend/internal/chat"
	"taskmate/backend/internal/sync/schema"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Client is a stateless request/response wrapper around the REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithLogger routes request diagnostics to the given logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the API served under baseURL (e.g.
// "http://localhost:8080/api/v1").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs the bearer token used by subsequent requests.
func (c *Client) SetToken(token string) { c.token = token }

// region --- auth ---

// Register creates an account and returns the fresh session.
func (c *Client) Register(ctx context.Context, input schema.RegisterInput) (*schema.Session, error) {
	const op = "backend.Register"
	if err := schema.Validate(input); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	var session schema.Session
	if err := c.do(ctx, op, http.MethodPost, "/auth/register", nil, input, &session); err != nil {
		return nil, err
	}
	if err := schema.Validate(session); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &session, nil
}

// SignIn authenticates and returns the session.
func (c *Client) SignIn(ctx context.Context, input schema.LoginInput) (*schema.Session, error) {
	const op = "backend.SignIn"
	if err := schema.Validate(input); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	var session schema.Session
	if err := c.do(ctx, op, http.MethodPost, "/auth/login", nil, input, &session); err != nil {
		return nil, err
	}
	if err := schema.Validate(session); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &session, nil
}

// MarkReady completes onboarding and returns a refreshed session.
func (c *Client) MarkReady(ctx context.Context) (*schema.Session, error) {
	const op = "backend.MarkReady"
	var session schema.Session
	if err := c.do(ctx, op, http.MethodPost, "/auth/ready", nil, nil, &session); err != nil {
		return nil, err
	}
	if err := schema.Validate(session); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &session, nil
}

// endregion

// region --- profiles ---

// Profiles fetches public profiles by user id.
func (c *Client) Profiles(ctx context.Context, userIDs []uint) ([]schema.UserProfile, error) {
	const op = "backend.Profiles"
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := url.Values{"ids": {joinIDs(userIDs)}}
	var profiles []schema.UserProfile
	if err := c.do(ctx, op, http.MethodGet, "/profiles", query, nil, &profiles); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(profiles); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return profiles, nil
}

// UploadAvatar stores a base64-encoded image and returns the updated profile.
func (c *Client) UploadAvatar(ctx context.Context, input schema.AvatarInput) (*schema.UserProfile, error) {
	const op = "backend.UploadAvatar"
	if err := schema.Validate(input); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	var profile schema.UserProfile
	if err := c.do(ctx, op, http.MethodPost, "/profiles/me/avatar", nil, input, &profile); err != nil {
		return nil, err
	}
	if err := schema.Validate(profile); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &profile, nil
}

// endregion

// region --- friends ---

// Friends lists the current user's friend rows.
func (c *Client) Friends(ctx context.Context) ([]schema.Friend, error) {
	const op = "backend.Friends"
	var friends []schema.Friend
	if err := c.do(ctx, op, http.MethodGet, "/friends", nil, nil, &friends); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(friends); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return friends, nil
}

// FriendRequests lists every request involving the current user.
func (c *Client) FriendRequests(ctx context.Context) ([]schema.FriendRequest, error) {
	const op = "backend.FriendRequests"
	var requests []schema.FriendRequest
	if err := c.do(ctx, op, http.MethodGet, "/friends/requests", nil, nil, &requests); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(requests); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return requests, nil
}

// BlockedUsers lists the current user's blocks.
func (c *Client) BlockedUsers(ctx context.Context) ([]schema.BlockedUser, error) {
	const op = "backend.BlockedUsers"
	var blocks []schema.BlockedUser
	if err := c.do(ctx, op, http.MethodGet, "/friends/blocked", nil, nil, &blocks); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(blocks); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return blocks, nil
}

// SendFriendRequest sends a request to the receiver.
func (c *Client) SendFriendRequest(ctx context.Context, receiverID uint) (*schema.FriendRequest, error) {
	return c.friendRequestOp(ctx, "backend.SendFriendRequest", fmt.Sprintf("/friends/requests/%d", receiverID))
}

// AcceptFriendRequest accepts a pending request from the sender.
func (c *Client) AcceptFriendRequest(ctx context.Context, senderID uint) (*schema.FriendRequest, error) {
	return c.friendRequestOp(ctx, "backend.AcceptFriendRequest", fmt.Sprintf("/friends/requests/%d/accept", senderID))
}

// RejectFriendRequest rejects a pending request from the sender.
func (c *Client) RejectFriendRequest(ctx context.Context, senderID uint) (*schema.FriendRequest, error) {
	return c.friendRequestOp(ctx, "backend.RejectFriendRequest", fmt.Sprintf("/friends/requests/%d/reject", senderID))
}

func (c *Client) friendRequestOp(ctx context.Context, op, path string) (*schema.FriendRequest, error) {
	var request schema.FriendRequest
	if err := c.do(ctx, op, http.MethodPost, path, nil, nil, &request); err != nil {
		return nil, err
	}
	if err := schema.Validate(request); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &request, nil
}

// RemoveFriend deletes both directions of a friendship.
func (c *Client) RemoveFriend(ctx context.Context, friendID uint) error {
	const op = "backend.RemoveFriend"
	return c.do(ctx, op, http.MethodDelete, fmt.Sprintf("/friends/%d", friendID), nil, nil, nil)
}

// BlockUser creates a directed block.
func (c *Client) BlockUser(ctx context.Context, userID uint) (*schema.BlockedUser, error) {
	const op = "backend.BlockUser"
	var block schema.BlockedUser
	if err := c.do(ctx, op, http.MethodPost, fmt.Sprintf("/friends/block/%d", userID), nil, nil, &block); err != nil {
		return nil, err
	}
	if err := schema.Validate(block); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &block, nil
}

// endregion

// region --- tasks ---

// Tasks lists every task the current user created or is assigned to.
func (c *Client) Tasks(ctx context.Context) ([]schema.Task, error) {
	const op = "backend.Tasks"
	var tasks []schema.Task
	if err := c.do(ctx, op, http.MethodGet, "/tasks", nil, nil, &tasks); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(tasks); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return tasks, nil
}

// Related fetches every related table for a set of task ids in parallel and
// fails wholesale if any one request fails.
func (c *Client) Related(ctx context.Context, taskIDs []uint) (*schema.TaskRelations, error) {
	const op = "backend.Related"
	related := &schema.TaskRelations{}
	if len(taskIDs) == 0 {
		return related, nil
	}
	query := url.Values{"task_ids": {joinIDs(taskIDs)}}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.do(gctx, op, http.MethodGet, "/task-assignees", query, nil, &related.Assignees)
	})
	g.Go(func() error {
		return c.do(gctx, op, http.MethodGet, "/task-tags", query, nil, &related.Tags)
	})
	g.Go(func() error {
		return c.do(gctx, op, http.MethodGet, "/task-dependencies", query, nil, &related.Dependencies)
	})
	g.Go(func() error {
		return c.do(gctx, op, http.MethodGet, "/milestones", query, nil, &related.Milestones)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := schema.ValidateSlice(related.Assignees); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(related.Tags); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(related.Dependencies); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(related.Milestones); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return related, nil
}

// MilestoneAssignees fetches the assignee rows for a set of milestone ids.
func (c *Client) MilestoneAssignees(ctx context.Context, milestoneIDs []uint) ([]schema.MilestoneAssignee, error) {
	const op = "backend.MilestoneAssignees"
	if len(milestoneIDs) == 0 {
		return nil, nil
	}
	query := url.Values{"milestone_ids": {joinIDs(milestoneIDs)}}
	var rows []schema.MilestoneAssignee
	if err := c.do(ctx, op, http.MethodGet, "/milestone-assignees", query, nil, &rows); err != nil {
		return nil, err
	}
	if err := schema.ValidateSlice(rows); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return rows, nil
}

// TaskBundle fetches one task with every related row.
func (c *Client) TaskBundle(ctx context.Context, taskID uint) (*schema.TaskAttachment, error) {
	const op = "backend.TaskBundle"
	var bundle schema.TaskAttachment
	if err := c.do(ctx, op, http.MethodGet, fmt.Sprintf("/tasks/%d", taskID), nil, nil, &bundle); err != nil {
		return nil, err
	}
	if err := c.validateBundle(op, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// CreateTaskWithRelated calls the server-side transactional insert. Atomicity
// across the task and its related rows is the server's responsibility.
func (c *Client) CreateTaskWithRelated(ctx context.Context, input schema.TaskInsert) (*schema.TaskAttachment, error) {
	const op = "backend.CreateTaskWithRelated"
	if err := schema.Validate(input); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	var bundle schema.TaskAttachment
	if err := c.do(ctx, op, http.MethodPost, "/tasks", nil, input, &bundle); err != nil {
		return nil, err
	}
	if err := c.validateBundle(op, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (c *Client) validateBundle(op string, bundle *schema.TaskAttachment) error {
	if err := schema.Validate(bundle.Task); err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(bundle.Assignees); err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(bundle.Milestones); err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	if err := schema.ValidateSlice(bundle.MilestoneAssignees); err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return nil
}

// UpdateTask updates the core fields of a task the current user created.
func (c *Client) UpdateTask(ctx context.Context, taskID uint, input schema.TaskUpdate) (*schema.Task, error) {
	const op = "backend.UpdateTask"
	if err := schema.Validate(input); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	var task schema.Task
	if err := c.do(ctx, op, http.MethodPut, fmt.Sprintf("/tasks/%d", taskID), nil, input, &task); err != nil {
		return nil, err
	}
	if err := schema.Validate(task); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &task, nil
}

// DeleteTask deletes a task the current user created.
func (c *Client) DeleteTask(ctx context.Context, taskID uint) error {
	const op = "backend.DeleteTask"
	return c.do(ctx, op, http.MethodDelete, fmt.Sprintf("/tasks/%d", taskID), nil, nil, nil)
}

// SetTaskCompletion toggles the current user's completion flag on a task.
func (c *Client) SetTaskCompletion(ctx context.Context, taskID, userID uint, completed bool) (*schema.TaskAssignee, error) {
	const op = "backend.SetTaskCompletion"
	var row schema.TaskAssignee
	path := fmt.Sprintf("/tasks/%d/assignees/%d", taskID, userID)
	if err := c.do(ctx, op, http.MethodPut, path, nil, schema.Completion{Completed: completed}, &row); err != nil {
		return nil, err
	}
	if err := schema.Validate(row); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &row, nil
}

// SetMilestoneCompletion toggles the current user's completion flag on a
// milestone.
func (c *Client) SetMilestoneCompletion(ctx context.Context, milestoneID, userID uint, completed bool) (*schema.MilestoneAssignee, error) {
	const op = "backend.SetMilestoneCompletion"
	var row schema.MilestoneAssignee
	path := fmt.Sprintf("/milestones/%d/assignees/%d", milestoneID, userID)
	if err := c.do(ctx, op, http.MethodPut, path, nil, schema.Completion{Completed: completed}, &row); err != nil {
		return nil, err
	}
	if err := schema.Validate(row); err != nil {
		return nil, &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return &row, nil
}

// endregion

// region --- messages ---

type messagePayload struct {
	ChannelID   string            `json:"channel_id"`
	CustomType  string            `json:"custom_type"`
	Content     string            `json:"content"`
	Attachments []chat.Attachment `json:"attachments"`
}

// PostMessage posts a message into a channel.
func (c *Client) PostMessage(ctx context.Context, channelID string, msg chat.Message) error {
	const op = "backend.PostMessage"
	payload := messagePayload{
		ChannelID:   channelID,
		CustomType:  msg.CustomType,
		Content:     msg.Content,
		Attachments: msg.Attachments,
	}
	return c.do(ctx, op, http.MethodPost, "/messages", nil, payload, nil)
}

type clientChannel struct {
	id     string
	client *Client
}

func (ch *clientChannel) ID() string { return ch.id }

func (ch *clientChannel) SendMessage(ctx context.Context, msg chat.Message) error {
	return ch.client.PostMessage(ctx, ch.id, msg)
}

// Channel returns a chat.Channel that delivers through this client.
func (c *Client) Channel(id string) chat.Channel {
	return &clientChannel{id: id, client: c}
}

// endregion

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: op, Err: err}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &Error{Kind: KindPermanent, Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindTransient, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		kind := KindPermanent
		if resp.StatusCode >= 500 {
			kind = KindTransient
		}
		message := serverMessage(resp.Body)
		c.log.Warn("request failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		return &Error{Kind: kind, Op: op, Status: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindValidation, Op: op, Err: err}
	}
	return nil
}

func serverMessage(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil || payload.Error == "" {
		return "request failed"
	}
	return payload.Error
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}
