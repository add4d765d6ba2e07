package gallery

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abduss/picvault/internal/album"
	"github.com/abduss/picvault/internal/auth"
	"github.com/abduss/picvault/internal/index"
	"github.com/abduss/picvault/internal/logger"
	"github.com/abduss/picvault/internal/remote"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// RegisterRoutes mounts the gallery endpoints. Reads go on public, writes on
// protected, which must carry auth.AuthMiddleware.
func RegisterRoutes(public, protected *gin.RouterGroup, service *Service) {
	handler := &httpHandler{service: service}

	public.GET("/images", handler.listImages)
	public.GET("/images/search", handler.searchImages)
	public.GET("/images/random", handler.randomImages)
	public.GET("/lookup/:imageID", handler.lookupImage)
	public.GET("/users/:username/images", handler.userImages)
	public.GET("/users/:username/albums", handler.userAlbums)
	public.GET("/images/:repository/:imageID", handler.getImage)
	public.GET("/tags", handler.tags)
	public.GET("/tags/:tag/images", handler.imagesByTag)
	public.GET("/albums", handler.listAlbums)
	public.GET("/albums/:albumID", handler.getAlbum)
	public.GET("/albums/:albumID/images", handler.albumImages)
	public.GET("/storage/stats", handler.storageStats)

	protected.POST("/images", handler.uploadImage)
	protected.DELETE("/images/:repository/:imageID", handler.deleteImage)
	protected.POST("/images/bulk", handler.bulkImages)
	protected.POST("/albums", handler.createAlbum)
	protected.PATCH("/albums/:albumID", handler.renameAlbum)
	protected.DELETE("/albums/:albumID", handler.deleteAlbum)
	protected.POST("/albums/:albumID/images", handler.addAlbumImage)
	protected.DELETE("/albums/:albumID/images/:repository/:imageID", handler.removeAlbumImage)
	protected.GET("/storage/orphans", handler.orphanedBlobs)
}

type httpHandler struct {
	service *Service
}

type uploadResponse struct {
	Image   index.AssetRecord `json:"image"`
	Warning string            `json:"warning,omitempty"`
}

type createAlbumRequest struct {
	Name        string   `json:"name" binding:"required,max=100"`
	Description string   `json:"description" binding:"max=500"`
	Tags        []string `json:"tags"`
}

type renameAlbumRequest struct {
	Name string `json:"name" binding:"required,max=100"`
}

type bulkRequest struct {
	Action   string   `json:"action" binding:"required"`
	ImageIDs []string `json:"imageIds" binding:"required"`
}

type albumImageRequest struct {
	Repository string `json:"repository" binding:"required"`
	ImageID    string `json:"imageId" binding:"required"`
}

// writeError maps err to a status through Classify.
// requireUser returns the authenticated caller or writes 401.
func requireUser(c *gin.Context) (auth.ContextUser, bool) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return user, ok
}

func writeError(c *gin.Context, err error, message string) {
	kind := Classify(err)
	body := gin.H{"error": message, "kind": kind}

	status := http.StatusServiceUnavailable
	switch kind {
	case KindReauth:
		status = http.StatusUnauthorized
		body["action"] = "reauthenticate"
	case KindCapacity:
		status = http.StatusInsufficientStorage
	case KindForbidden:
		status = http.StatusForbidden
	case KindNotFound:
		status = http.StatusNotFound
	case KindConflict:
		status = http.StatusConflict
	case KindInvalid:
		status = http.StatusBadRequest
		body["detail"] = err.Error()
	case KindTooLarge:
		status = http.StatusRequestEntityTooLarge
	}

	if status == http.StatusServiceUnavailable || status == http.StatusUnauthorized {
		logger.FromContext(c).Error(message, zap.Error(err), zap.String("kind", string(kind)))
	}
	c.JSON(status, body)
}

func (h *httpHandler) uploadImage(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}
	if limit := h.service.cfg.MaxUploadBytes; limit > 0 && fileHeader.Size > limit {
		writeError(c, ErrTooLarge, "file too large")
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	visibility := remote.Visibility(strings.ToLower(c.DefaultPostForm("visibility", string(remote.Public))))
	rec, err := h.service.UploadAsset(c.Request.Context(), UploadInput{
		Filename:   fileHeader.Filename,
		Content:    content,
		MimeType:   fileHeader.Header.Get("Content-Type"),
		Uploader:   user.Username,
		Visibility: visibility,
		AlbumID:    c.PostForm("albumId"),
	})
	if err != nil {
		if rec.ID != "" {
			logger.FromContext(c).Warn("upload stored without album", zap.String("asset_id", rec.ID), zap.Error(err))
			c.JSON(http.StatusCreated, uploadResponse{Image: rec, Warning: "image uploaded but not added to album"})
			return
		}
		writeError(c, err, "failed to upload image")
		return
	}

	c.JSON(http.StatusCreated, uploadResponse{Image: rec})
}

func (h *httpHandler) listImages(c *gin.Context) {
	visibility := remote.Visibility(strings.ToLower(c.DefaultQuery("visibility", string(remote.Public))))
	viewer := ""
	switch visibility {
	case remote.Public:
	case remote.Private:
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "private listing requires authentication"})
			return
		}
		viewer = user.Username
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "visibility must be public or private"})
		return
	}

	agg, err := h.service.ListAssets(c.Request.Context(), visibility, viewer)
	if err != nil {
		writeError(c, err, "failed to list images")
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": agg.Items, "total": len(agg.Items), "omissions": agg.Omissions, "complete": agg.Complete()})
}

func (h *httpHandler) searchImages(c *gin.Context) {
	q, err := parseSearchQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	page, err := h.service.SearchAssets(c.Request.Context(), q)
	if err != nil {
		writeError(c, err, "failed to search images")
		return
	}
	c.JSON(http.StatusOK, page)
}

func parseSearchQuery(c *gin.Context) (SearchQuery, error) {
	q := SearchQuery{
		Text: c.Query("q"),
		Type: strings.ToLower(c.DefaultQuery("type", "all")),
		Sort: strings.ToLower(c.DefaultQuery("sort", SortNewest)),
	}
	var err error
	if q.MinSize, err = queryInt64(c, "minSize"); err != nil {
		return SearchQuery{}, err
	}
	if q.MaxSize, err = queryInt64(c, "maxSize"); err != nil {
		return SearchQuery{}, err
	}
	if q.From, err = queryTime(c, "from", false); err != nil {
		return SearchQuery{}, err
	}
	if q.To, err = queryTime(c, "to", true); err != nil {
		return SearchQuery{}, err
	}
	page, err := queryInt64(c, "page")
	if err != nil {
		return SearchQuery{}, err
	}
	limit, err := queryInt64(c, "limit")
	if err != nil {
		return SearchQuery{}, err
	}
	q.Page, q.Limit = int(page), int(limit)
	return q, nil
}

func queryInt64(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}

// queryTime accepts RFC 3339 or a bare date. A bare upper bound covers the whole day.
func queryTime(c *gin.Context, key string, endOfDay bool) (time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New(key + " must be a date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (h *httpHandler) getImage(c *gin.Context) {
	rec, err := h.service.GetAsset(c.Request.Context(), c.Param("repository"), c.Param("imageID"))
	if err != nil {
		writeError(c, err, "failed to get image")
		return
	}
	if rec.Private {
		user, ok := auth.CurrentUser(c)
		if !ok || user.Username != rec.Uploader {
			writeError(c, ErrAssetNotFound, "image not found")
			return
		}
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) deleteImage(c *gin.Context) {
	if err := h.service.DeleteAsset(c.Request.Context(), c.Param("repository"), c.Param("imageID")); err != nil {
		writeError(c, err, "failed to delete image")
		return
	}
	c.Status(http.StatusNoContent)
}

func viewerName(c *gin.Context) string {
	if user, ok := auth.CurrentUser(c); ok {
		return user.Username
	}
	return ""
}

func (h *httpHandler) randomImages(c *gin.Context) {
	count, err := queryInt64(c, "count")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	picked, err := h.service.RandomAssets(c.Request.Context(), int(count))
	if err != nil {
		writeError(c, err, "failed to pick random images")
		return
	}
	switch c.DefaultQuery("format", "json") {
	case "redirect":
		c.Redirect(http.StatusFound, picked[0].RawURL)
	case "url":
		c.String(http.StatusOK, picked[0].RawURL)
	default:
		c.JSON(http.StatusOK, gin.H{"images": picked})
	}
}

func (h *httpHandler) lookupImage(c *gin.Context) {
	rec, err := h.service.FindAsset(c.Request.Context(), c.Param("imageID"), viewerName(c))
	if err != nil {
		writeError(c, err, "failed to look up image")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) userImages(c *gin.Context) {
	agg, err := h.service.UserAssets(c.Request.Context(), c.Param("username"), viewerName(c))
	if err != nil {
		writeError(c, err, "failed to list user images")
		return
	}
	c.JSON(http.StatusOK, gin.H{"images": agg.Items, "total": len(agg.Items), "omissions": agg.Omissions, "complete": agg.Complete()})
}

func (h *httpHandler) userAlbums(c *gin.Context) {
	agg, err := h.service.UserAlbums(c.Request.Context(), c.Param("username"))
	if err != nil {
		writeError(c, err, "failed to list user albums")
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": agg.Items, "total": len(agg.Items), "omissions": agg.Omissions, "complete": agg.Complete()})
}

func (h *httpHandler) bulkImages(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.service.Bulk(c.Request.Context(), BulkRequest{
		Action: strings.ToLower(req.Action),
		IDs:    req.ImageIDs,
		Caller: user.Username,
	})
	if err != nil {
		writeError(c, err, "bulk operation failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *httpHandler) tags(c *gin.Context) {
	summary, err := h.service.Tags(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to summarize tags")
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) imagesByTag(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := h.service.AssetsByTag(c.Request.Context(), c.Param("tag"), page, limit)
	if err != nil {
		writeError(c, err, "failed to list tagged images")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *httpHandler) createAlbum(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var req createAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.service.CreateAlbum(c.Request.Context(), album.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Owner:       user.Username,
	})
	if err != nil {
		writeError(c, err, "failed to create album")
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *httpHandler) listAlbums(c *gin.Context) {
	agg, err := h.service.ListAlbums(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to list albums")
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": agg.Items, "total": len(agg.Items), "omissions": agg.Omissions, "complete": agg.Complete()})
}

func (h *httpHandler) getAlbum(c *gin.Context) {
	rec, err := h.service.GetAlbum(c.Request.Context(), c.Param("albumID"))
	if err != nil {
		writeError(c, err, "failed to get album")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) albumImages(c *gin.Context) {
	rec, err := h.service.GetAlbum(c.Request.Context(), c.Param("albumID"))
	if err != nil {
		writeError(c, err, "failed to get album")
		return
	}
	agg, err := h.service.AlbumImages(c.Request.Context(), rec, viewerName(c))
	if err != nil {
		writeError(c, err, "failed to list album images")
		return
	}
	c.JSON(http.StatusOK, gin.H{"album": rec, "images": agg.Items, "omissions": agg.Omissions, "complete": agg.Complete()})
}

func (h *httpHandler) renameAlbum(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req renameAlbumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.service.RenameAlbum(c.Request.Context(), user.Username, c.Param("albumID"), req.Name)
	if err != nil {
		writeError(c, err, "failed to rename album")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) deleteAlbum(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.service.DeleteAlbum(c.Request.Context(), user.Username, c.Param("albumID")); err != nil {
		writeError(c, err, "failed to delete album")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) addAlbumImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req albumImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.service.AddImageToAlbum(c.Request.Context(), user.Username, c.Param("albumID"), req.Repository, req.ImageID)
	if err != nil {
		writeError(c, err, "failed to add image to album")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) removeAlbumImage(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	rec, err := h.service.RemoveImageFromAlbum(c.Request.Context(), user.Username, c.Param("albumID"), c.Param("repository"), c.Param("imageID"))
	if err != nil {
		writeError(c, err, "failed to remove image from album")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *httpHandler) storageStats(c *gin.Context) {
	stats, err := h.service.CapacityStats(c.Request.Context())
	if err != nil {
		writeError(c, err, "failed to compute storage stats")
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *httpHandler) orphanedBlobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	blobs, err := h.service.OrphanedBlobs(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err, "failed to list orphaned blobs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orphans": blobs})
}
