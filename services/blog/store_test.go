package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pavitra93/go-multi-tenant-blog/shared/events"
	"github.com/pavitra93/go-multi-tenant-blog/shared/models"
	"github.com/pavitra93/go-multi-tenant-blog/shared/repository"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
)

// memStore is an in-memory blogStore partitioned by schema
type memStore struct {
	mu       sync.Mutex
	clock    time.Time
	articles map[tenancy.Schema]map[uuid.UUID]*models.Article
	comments map[tenancy.Schema]map[uuid.UUID]*models.Comment
	ratings  map[tenancy.Schema]map[[2]uuid.UUID]bool
}

func newMemStore() *memStore {
	return &memStore{
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		articles: map[tenancy.Schema]map[uuid.UUID]*models.Article{},
		comments: map[tenancy.Schema]map[uuid.UUID]*models.Comment{},
		ratings:  map[tenancy.Schema]map[[2]uuid.UUID]bool{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) CreateArticleWithImage(_ context.Context, schema tenancy.Schema, article *models.Article, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.articles[schema] == nil {
		s.articles[schema] = map[uuid.UUID]*models.Article{}
	}
	article.ID = uuid.New()
	article.CreatedAt = s.tick()
	article.ImageURL = imageURL
	cp := *article
	s.articles[schema][article.ID] = &cp
	return nil
}

func (s *memStore) CreateArticleImage(_ context.Context, schema tenancy.Schema, image *models.ArticleImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[schema][image.ArticleID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	a.ImageURL = image.URL
	return nil
}

func (s *memStore) commentCount(schema tenancy.Schema, articleID uuid.UUID) int64 {
	var n int64
	for _, c := range s.comments[schema] {
		if c.ArticleID == articleID {
			n++
		}
	}
	return n
}

func (s *memStore) FindArticle(_ context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[schema][id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	cp.CommentsCount = s.commentCount(schema, id)
	return &cp, nil
}

func (s *memStore) ListArticles(_ context.Context, schema tenancy.Schema, f repository.ArticleFilter) ([]models.Article, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.Article
	for _, a := range s.articles[schema] {
		if f.AuthorID != nil && a.AuthorID != *f.AuthorID {
			continue
		}
		if f.PublishedOnly && !a.IsPublished() {
			continue
		}
		cp := *a
		cp.CommentsCount = s.commentCount(schema, a.ID)
		matched = append(matched, cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := f.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *memStore) UpdateArticle(_ context.Context, schema tenancy.Schema, id uuid.UUID, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[schema][id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range fields {
		switch k {
		case "title":
			a.Title = v.(string)
		case "perex":
			a.Perex = v.(string)
		case "content":
			a.Content = v.(string)
		case "status":
			a.Status = v.(models.ArticleStatus)
		}
	}
	return nil
}

func (s *memStore) DeleteArticle(_ context.Context, schema tenancy.Schema, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.articles[schema][id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.articles[schema], id)
	for cid, c := range s.comments[schema] {
		if c.ArticleID == id {
			delete(s.comments[schema], cid)
		}
	}
	return nil
}

func (s *memStore) CreateComment(_ context.Context, schema tenancy.Schema, comment *models.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.comments[schema] == nil {
		s.comments[schema] = map[uuid.UUID]*models.Comment{}
	}
	comment.ID = uuid.New()
	comment.CreatedAt = s.tick()
	cp := *comment
	s.comments[schema][comment.ID] = &cp
	return nil
}

func (s *memStore) FindComment(_ context.Context, schema tenancy.Schema, id uuid.UUID) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[schema][id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) ListComments(_ context.Context, schema tenancy.Schema, articleID uuid.UUID) ([]*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Comment
	for _, c := range s.comments[schema] {
		if c.ArticleID == articleID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) UpdateCommentText(_ context.Context, schema tenancy.Schema, id uuid.UUID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[schema][id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Text = text
	return nil
}

func (s *memStore) DeleteComment(_ context.Context, schema tenancy.Schema, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[schema][id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.comments[schema], id)
	return nil
}

func (s *memStore) RateComment(_ context.Context, schema tenancy.Schema, rating *models.Rating) (*models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.comments[schema][rating.CommentID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if s.ratings[schema] == nil {
		s.ratings[schema] = map[[2]uuid.UUID]bool{}
	}
	key := [2]uuid.UUID{rating.UserID, rating.CommentID}
	if s.ratings[schema][key] {
		return nil, repository.ErrAlreadyRated
	}
	s.ratings[schema][key] = true
	if rating.IsUpvote {
		c.RatingScore++
	} else {
		c.RatingScore--
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) RatedCommentIDs(_ context.Context, schema tenancy.Schema, userID, articleID uuid.UUID) (map[uuid.UUID]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uuid.UUID]bool{}
	for key := range s.ratings[schema] {
		if key[0] != userID {
			continue
		}
		if c, ok := s.comments[schema][key[1]]; ok && c.ArticleID == articleID {
			out[key[1]] = true
		}
	}
	return out, nil
}

// recorder keeps every published event
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
