package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/catalog"
	"github.com/mrlokans/librarian/internal/entities"
)

const defaultMaxImageBytes = 5 << 20

// CatalogController handles works, copies and reference data.
// Reads are open to every caller, writes need staff.
type CatalogController struct {
	store         CatalogStore
	covers        CoverIdentifier
	auditor       Auditor
	maxImageBytes int64
}

// NewCatalogController creates a CatalogController. covers may be nil.
func NewCatalogController(store CatalogStore, covers CoverIdentifier, auditor Auditor, maxImageBytes int64) *CatalogController {
	if auditor == nil {
		auditor = nopAuditor{}
	}
	if maxImageBytes <= 0 {
		maxImageBytes = defaultMaxImageBytes
	}
	return &CatalogController{store: store, covers: covers, auditor: auditor, maxImageBytes: maxImageBytes}
}

// RegisterRoutes mounts the catalog endpoints on an /api group.
func (cc *CatalogController) RegisterRoutes(api gin.IRouter) {
	staff := auth.RequireRole(entities.RoleStaff)

	api.GET("/works", cc.ListWorks)
	api.POST("/works", staff, cc.CreateWork)
	api.POST("/works/identify-cover", cc.IdentifyCover)
	api.GET("/works/:id", cc.GetWork)
	api.PATCH("/works/:id", staff, cc.UpdateWork)
	api.DELETE("/works/:id", staff, cc.DeleteWork)
	api.GET("/works/:id/copies", cc.ListCopies)
	api.POST("/works/:id/copies", staff, cc.AddCopy)

	api.GET("/copies/:id", cc.GetCopy)
	api.PATCH("/copies/:id", staff, cc.UpdateCopy)
	api.DELETE("/copies/:id", staff, cc.DeleteCopy)

	api.GET("/authors", cc.ListAuthors)
	api.POST("/authors", staff, cc.CreateAuthor)
	api.GET("/publishers", cc.ListPublishers)
	api.POST("/publishers", staff, cc.CreatePublisher)
	api.GET("/categories", cc.ListCategories)
	api.POST("/categories", staff, cc.CreateCategory)
	api.GET("/bookshelves", cc.ListBookshelves)
	api.POST("/bookshelves", staff, cc.CreateBookshelf)
}

// --- Works ---

// ListWorks handles GET /api/works?q=&author_id=&category_id=&limit=&offset=
func (cc *CatalogController) ListWorks(c *gin.Context) {
	limit, offset, ok := parsePagination(c)
	if !ok {
		return
	}
	filter := catalog.WorkFilter{
		Query:  strings.TrimSpace(c.Query("q")),
		Limit:  limit,
		Offset: offset,
	}
	if filter.AuthorID, ok = parseOptionalQueryID(c, "author_id"); !ok {
		return
	}
	if filter.CategoryID, ok = parseOptionalQueryID(c, "category_id"); !ok {
		return
	}

	works, total, err := cc.store.ListWorks(c.Request.Context(), filter)
	if err != nil {
		respondDomainError(c, err, "list works")
		return
	}
	if works == nil {
		works = []entities.WorkView{}
	}
	c.JSON(http.StatusOK, newPage(works, total, limit, offset))
}

// GetWork handles GET /api/works/:id
func (cc *CatalogController) GetWork(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	work, err := cc.store.GetWork(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get work")
		return
	}
	c.JSON(http.StatusOK, work)
}

// CreateWork handles POST /api/works
func (cc *CatalogController) CreateWork(c *gin.Context) {
	var in catalog.WorkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	work, err := cc.store.CreateWork(c.Request.Context(), in)
	if err != nil {
		respondDomainError(c, err, "create work")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "work_create", "work", work.ID, fmt.Sprintf("Created work %q", work.Title))
	respondCreated(c, work)
}

// UpdateWork handles PATCH /api/works/:id. The body replaces every
// editable field.
func (cc *CatalogController) UpdateWork(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var in catalog.WorkInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	work, err := cc.store.UpdateWork(c.Request.Context(), id, in)
	if err != nil {
		respondDomainError(c, err, "update work")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "work_update", "work", id, fmt.Sprintf("Updated work %q", work.Title))
	c.JSON(http.StatusOK, work)
}

// DeleteWork handles DELETE /api/works/:id
func (cc *CatalogController) DeleteWork(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := cc.store.DeleteWork(c.Request.Context(), id); err != nil {
		respondDomainError(c, err, "delete work")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "work_delete", "work", id, fmt.Sprintf("Deleted work %d", id))
	respondSuccess(c, "work deleted")
}

// IdentifyCover handles POST /api/works/identify-cover (multipart "image").
func (cc *CatalogController) IdentifyCover(c *gin.Context) {
	if cc.covers == nil || !cc.covers.CoverEnabled() {
		respondError(c, http.StatusNotImplemented, "not_configured", "cover recognition is not configured")
		return
	}
	image, err := readImage(c, cc.maxImageBytes)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}
	work, result, err := cc.covers.ClassifyCover(c.Request.Context(), image)
	if err != nil {
		respondDomainError(c, err, "identify cover")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"work":       work,
		"label":      result.Label,
		"confidence": result.Confidence,
	})
}

// --- Copies ---

// AddCopyRequest is the body of POST /api/works/:id/copies.
type AddCopyRequest struct {
	BookshelfID *uint  `json:"bookshelf_id"`
	Barcode     string `json:"barcode" binding:"max=64"`
}

// UpdateCopyRequest is the body of PATCH /api/copies/:id. Either field may
// be set; MoveShelf distinguishes clearing the shelf from leaving it alone.
type UpdateCopyRequest struct {
	MoveShelf   bool                `json:"move_shelf"`
	BookshelfID *uint               `json:"bookshelf_id"`
	Status      entities.CopyStatus `json:"status"`
}

// ListCopies handles GET /api/works/:id/copies
func (cc *CatalogController) ListCopies(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if _, err := cc.store.GetWork(c.Request.Context(), id); err != nil {
		respondDomainError(c, err, "list copies")
		return
	}
	copies, err := cc.store.ListCopies(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "list copies")
		return
	}
	if copies == nil {
		copies = []entities.Copy{}
	}
	c.JSON(http.StatusOK, gin.H{"copies": copies})
}

// AddCopy handles POST /api/works/:id/copies
func (cc *CatalogController) AddCopy(c *gin.Context) {
	workID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body AddCopyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondBadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	cp, err := cc.store.AddCopy(c.Request.Context(), workID, body.BookshelfID, body.Barcode)
	if err != nil {
		respondDomainError(c, err, "add copy")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "copy_create", "copy", cp.ID, fmt.Sprintf("Added copy %d to work %d", cp.ID, workID))
	respondCreated(c, cp)
}

// GetCopy handles GET /api/copies/:id
func (cc *CatalogController) GetCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	cp, err := cc.store.GetCopy(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "get copy")
		return
	}
	c.JSON(http.StatusOK, cp)
}

// UpdateCopy handles PATCH /api/copies/:id. Status may only move a copy
// between available and reserved or lost.
func (cc *CatalogController) UpdateCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var body UpdateCopyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if !body.MoveShelf && body.Status == "" {
		respondBadRequest(c, "nothing to update")
		return
	}
	if body.Status == entities.CopyStatusBorrowed {
		respondBadRequest(c, "copies are lent out through borrows")
		return
	}

	ctx := c.Request.Context()
	caller := auth.GetPersonID(c)
	var (
		cp  *entities.Copy
		err error
	)
	if body.MoveShelf {
		if cp, err = cc.store.MoveCopy(ctx, id, body.BookshelfID); err != nil {
			respondDomainError(c, err, "move copy")
			return
		}
		cc.auditor.LogCatalog(caller, "copy_move", "copy", id, fmt.Sprintf("Moved copy %d", id))
	}
	if body.Status != "" {
		if cp, err = cc.store.SetCopyStatus(ctx, id, body.Status); err != nil {
			respondDomainError(c, err, "set copy status")
			return
		}
		cc.auditor.LogCatalog(caller, "copy_"+string(body.Status), "copy", id, fmt.Sprintf("Marked copy %d %s", id, body.Status))
	}
	c.JSON(http.StatusOK, cp)
}

// DeleteCopy handles DELETE /api/copies/:id
func (cc *CatalogController) DeleteCopy(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := cc.store.DeleteCopy(c.Request.Context(), id); err != nil {
		respondDomainError(c, err, "delete copy")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "copy_delete", "copy", id, fmt.Sprintf("Deleted copy %d", id))
	respondSuccess(c, "copy deleted")
}

// --- Reference data ---

// NameRequest is the body for creating authors, publishers and categories.
type NameRequest struct {
	Name string `json:"name" binding:"required,max=256"`
}

// BookshelfRequest is the body of POST /api/bookshelves.
type BookshelfRequest struct {
	Name     string `json:"name" binding:"required,max=128"`
	Location string `json:"location" binding:"max=256"`
}

func (cc *CatalogController) ListAuthors(c *gin.Context) {
	listReference(c, "authors", cc.store.ListAuthors)
}

func (cc *CatalogController) CreateAuthor(c *gin.Context) {
	createNamed(c, cc, "author", func(name string) (*entities.Author, uint, error) {
		a, err := cc.store.CreateAuthor(c.Request.Context(), name)
		if err != nil {
			return nil, 0, err
		}
		return a, a.ID, nil
	})
}

func (cc *CatalogController) ListPublishers(c *gin.Context) {
	listReference(c, "publishers", cc.store.ListPublishers)
}

func (cc *CatalogController) CreatePublisher(c *gin.Context) {
	createNamed(c, cc, "publisher", func(name string) (*entities.Publisher, uint, error) {
		p, err := cc.store.CreatePublisher(c.Request.Context(), name)
		if err != nil {
			return nil, 0, err
		}
		return p, p.ID, nil
	})
}

func (cc *CatalogController) ListCategories(c *gin.Context) {
	listReference(c, "categories", cc.store.ListCategories)
}

func (cc *CatalogController) CreateCategory(c *gin.Context) {
	createNamed(c, cc, "category", func(name string) (*entities.Category, uint, error) {
		cat, err := cc.store.CreateCategory(c.Request.Context(), name)
		if err != nil {
			return nil, 0, err
		}
		return cat, cat.ID, nil
	})
}

func (cc *CatalogController) ListBookshelves(c *gin.Context) {
	listReference(c, "bookshelves", cc.store.ListBookshelves)
}

func (cc *CatalogController) CreateBookshelf(c *gin.Context) {
	var body BookshelfRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	shelf, err := cc.store.CreateBookshelf(c.Request.Context(), body.Name, body.Location)
	if err != nil {
		respondDomainError(c, err, "create bookshelf")
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), "bookshelf_create", "bookshelf", shelf.ID, fmt.Sprintf("Created bookshelf %q", shelf.Name))
	respondCreated(c, shelf)
}

func listReference[T any](c *gin.Context, key string, list func(ctx context.Context) ([]T, error)) {
	items, err := list(c.Request.Context())
	if err != nil {
		respondDomainError(c, err, "list "+key)
		return
	}
	if items == nil {
		items = []T{}
	}
	c.JSON(http.StatusOK, gin.H{key: items})
}

func createNamed[T any](c *gin.Context, cc *CatalogController, entity string, create func(name string) (*T, uint, error)) {
	var body NameRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	item, id, err := create(strings.TrimSpace(body.Name))
	if err != nil {
		respondDomainError(c, err, "create "+entity)
		return
	}
	cc.auditor.LogCatalog(auth.GetPersonID(c), entity+"_create", entity, id, fmt.Sprintf("Created %s %q", entity, body.Name))
	respondCreated(c, item)
}

// readImage reads the multipart "image" field, capped at maxBytes.
func readImage(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	file, _, err := c.Request.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("image is required: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}
