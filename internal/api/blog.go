package api

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cyhdev/backend/internal/apperr"
	"github.com/cyhdev/backend/internal/db"
	"github.com/cyhdev/backend/internal/postcache"
)

type postResponse struct {
	ID          uuid.UUID `json:"post_id"`
	Title       string    `json:"title"`
	Subtitle    string    `json:"subtitle"`
	PreviewText string    `json:"preview_text"`
	IsPublished bool      `json:"is_published"`
	Tags        []string  `json:"tags"`
}

func toPostResponse(p postcache.PostInfo) postResponse {
	return postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Subtitle:    p.Subtitle,
		PreviewText: p.PreviewText,
		IsPublished: p.IsPublished,
		Tags:        p.Tags,
	}
}

// listPosts serves a page of the post cache (C5) directly, never touching
// the database on the read path.
func (h *handlers) listPosts(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	size := queryInt(r, "size", 20)

	posts, total := h.state.Posts.GetPage(page, size)
	out := make([]postResponse, len(posts))
	for i, p := range posts {
		out[i] = toPostResponse(p)
	}
	ok(w, envelope{"posts": out, "total": total})
}

type createPostRequest struct {
	AuthorID uuid.UUID `json:"author_id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Tags     []string  `json:"tags"`
}

// createPost writes the post and its tags to the database, then pushes the
// new row into the post cache and the search index — the write-then-notify
// sequencing spec.md's invariants require (a DB write is never acknowledged
// before the cache is told about it).
func (h *handlers) createPost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if !decodeJSON(w, h, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, h, apperr.New(apperr.KindValidation, 1001, "title is required"))
		return
	}

	tags := postcache.NormalizeTags(req.Tags)

	post := db.Post{AuthorID: req.AuthorID, Title: req.Title, Content: req.Content, IsPublished: true}
	if err := h.state.DB.Create(&post).Error; err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindQueryFailure, 1002, "failed to create post", err))
		return
	}

	for _, name := range tags {
		var tag db.Tag
		if err := h.state.DB.Where(db.Tag{Name: name}).FirstOrCreate(&tag).Error; err != nil {
			writeError(w, h, apperr.Wrap(apperr.KindQueryFailure, 1003, "failed to create tag", err))
			return
		}
		if err := h.state.DB.Create(&db.PostTag{PostID: post.ID, TagID: tag.ID}).Error; err != nil {
			writeError(w, h, apperr.Wrap(apperr.KindQueryFailure, 1004, "failed to associate tag", err))
			return
		}
	}

	info := postcache.PostInfo{
		ID: post.ID, AuthorID: post.AuthorID, Title: post.Title,
		IsPublished: post.IsPublished, Tags: tags,
		CreatedAt: post.CreatedAt, UpdatedAt: post.UpdatedAt,
	}
	h.state.Posts.InsertPost(info)
	if err := h.state.SearchIndex.Upsert(post.ID, post.Title, tags); err != nil {
		h.logger.Warn("failed to index new post, will be picked up on next sync", zap.Error(err))
	}

	created(w, toPostResponse(info))
}

// searchPosts implements the title/tag/title+tag search surface S1/S2
// exercise: ?q=&tags=a,b&search_type=title|tag|both.
func (h *handlers) searchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	searchType := q.Get("search_type")
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 10)

	var tags []string
	if raw := q.Get("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}

	var err error
	var ids []uuid.UUID
	var total uint64

	switch searchType {
	case "tag":
		result, e := h.state.SearchIndex.SearchTag(query, offset, limit)
		ids, total, err = result.PostIDs, result.Total, e
	case "tags":
		result, e := h.state.SearchIndex.SearchTags(tags, offset, limit)
		ids, total, err = result.PostIDs, result.Total, e
	case "both":
		result, e := h.state.SearchIndex.SearchTitleAndTags(query, tags, offset, limit)
		ids, total, err = result.PostIDs, result.Total, e
	default:
		result, e := h.state.SearchIndex.SearchTitle(query, offset, limit)
		ids, total, err = result.PostIDs, result.Total, e
	}

	if err != nil {
		writeError(w, h, apperr.Wrap(apperr.KindInternal, 1005, "search failed", err))
		return
	}
	ok(w, envelope{"post_ids": ids, "total": total})
}
