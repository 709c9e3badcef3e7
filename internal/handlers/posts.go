package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foodshare/apiserver/internal/live"
	"github.com/foodshare/apiserver/internal/services"
	"github.com/foodshare/apiserver/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	formFieldPhoto     = "photo"
	maxMultipartMemory = 1 << 20
	heartbeatInterval  = 25 * time.Second
)

// PostHandler provides HTTP handlers for posts.
type PostHandler struct {
	posts *services.PostService
	hub   *live.Hub
	log   *zap.Logger
}

// NewPostHandler constructs a handler. hub may be nil, which disables the
// live stream.
func NewPostHandler(posts *services.PostService, hub *live.Hub, log *zap.Logger) *PostHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostHandler{posts: posts, hub: hub, log: log}
}

// PostRouter registers the request/response post routes on the given router.
func PostRouter(r chi.Router, handler *PostHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/", handler.ListPosts)
	r.With(authMiddleware).Post("/", handler.CreatePost)
	r.Route("/{postID}", func(r chi.Router) {
		r.Get("/", handler.GetPost)
		r.Get("/photo", handler.GetPhoto)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Put("/claim", handler.ClaimPost)
			r.Put("/complete", handler.CompletePost)
			r.Put("/photo", handler.AttachPhoto)
			r.Delete("/", handler.DeletePost)
		})
	})
}

func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	posts, err := h.posts.ListPosts(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.posts.GetPost(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}

	post, err := h.posts.CreatePost(r.Context(), principal, services.PostInput{
		CanteenName: req.CanteenName,
		Items:       req.Items,
		Portions:    req.Portions,
		ReadyBy:     req.ReadyBy,
		Location:    req.Location,
		Dietary:     req.Dietary,
		Contact:     req.Contact,
		Notes:       req.Notes,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "failed to create post")
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (h *PostHandler) ClaimPost(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	// role first: a canteen is refused whatever it sends
	if principal.Role != types.RoleNGO {
		writeServiceError(w, h.log, services.ErrForbidden, "failed to claim post")
		return
	}

	// an empty body is an empty claim; the service reports the missing fields
	// only once the post is known to be open
	var req ClaimRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return
	}

	post, err := h.posts.ClaimPost(r.Context(), principal, chi.URLParam(r, "postID"), services.ClaimInput{
		NGOName: req.NGOName,
		Phone:   req.Phone,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "failed to claim post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) CompletePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	post, err := h.posts.CompletePost(r.Context(), principal, chi.URLParam(r, "postID"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to complete post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}

	if err := h.posts.DeletePost(r.Context(), principal, chi.URLParam(r, "postID")); err != nil {
		writeServiceError(w, h.log, err, "failed to delete post")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PostHandler) AttachPhoto(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if !h.posts.PhotosEnabled() {
		writeServiceError(w, h.log, services.ErrPhotosDisabled, "failed to attach photo")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxPhotoBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "photo too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile(formFieldPhoto)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("missing %s file", formFieldPhoto))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		sniff := make([]byte, 512)
		n, _ := io.ReadFull(file, sniff)
		contentType = http.DetectContentType(sniff[:n])
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			writeServiceError(w, h.log, err, "failed to read photo")
			return
		}
	}

	post, err := h.posts.AttachPhoto(r.Context(), principal, chi.URLParam(r, "postID"), services.PhotoUpload{
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeServiceError(w, h.log, err, "failed to attach photo")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (h *PostHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	rc, contentType, err := h.posts.OpenPhoto(r.Context(), chi.URLParam(r, "postID"))
	if err != nil {
		writeServiceError(w, h.log, err, "failed to fetch photo")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.log.Warn("failed to stream photo", zap.Error(err))
	}
}

// Stream serves the filtered post list as server-sent events. A snapshot is
// sent on connect and again after every post event.
func (h *PostHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotImplemented, "live updates are not enabled")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, cancel := h.hub.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// the stream outlives the server write timeout
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ctx := r.Context()
	if err := h.sendSnapshot(w, r, filter); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.log.Warn("streaming unsupported", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			// collapse bursts into one snapshot
			drain(events)
			if err := h.sendSnapshot(w, r, filter); err != nil {
				return
			}
			_ = rc.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func (h *PostHandler) sendSnapshot(w io.Writer, r *http.Request, filter types.PostFilter) error {
	posts, err := h.posts.ListPosts(r.Context(), filter)
	if err != nil {
		if !errors.Is(err, r.Context().Err()) {
			h.log.Error("failed to list posts for stream", zap.Error(err))
		}
		_, _ = io.WriteString(w, "event: error\ndata: {\"error\":\"failed to list posts\"}\n\n")
		return err
	}
	data, err := json.Marshal(posts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
	return err
}

func drain(events <-chan types.PostEvent) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (h *PostHandler) principal(w http.ResponseWriter, r *http.Request) (types.Principal, bool) {
	principal, err := PrincipalFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.Principal{}, false
	}
	return principal, true
}

func parseFilter(r *http.Request) (types.PostFilter, error) {
	q := r.URL.Query()
	filter := types.PostFilter{
		Status:  q.Get("status"),
		Dietary: q.Get("dietary"),
		Query:   q.Get("q"),
	}
	if status := filter.StatusFilter(); status != "" && !status.Valid() {
		return types.PostFilter{}, fmt.Errorf("invalid status %q", filter.Status)
	}
	return filter, nil
}

// CreatePostRequest is the body of POST /posts. ready_by is RFC 3339.
type CreatePostRequest struct {
	CanteenName string    `json:"canteen_name"`
	Items       string    `json:"items"`
	Portions    int       `json:"portions"`
	ReadyBy     time.Time `json:"ready_by"`
	Location    string    `json:"location"`
	Dietary     []string  `json:"dietary"`
	Contact     string    `json:"contact"`
	Notes       string    `json:"notes"`
}

// ClaimRequest is the body of PUT /posts/{postID}/claim.
type ClaimRequest struct {
	NGOName string `json:"ngo_name"`
	Phone   string `json:"phone"`
}
