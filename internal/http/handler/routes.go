package handler

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docchat/internal/service"
	"docchat/internal/upload"
)

// OwnerHeader carries the caller identity. There is no authentication layer
// in front of this API; the header is trusted as-is and scopes every read and
// write to one owner.
const OwnerHeader = "X-Owner-ID"

type initUploadRequest struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

type uploadPartResponse struct {
	SessionID string `json:"session_id"`
	Complete  bool   `json:"complete"`
}

type createConversationRequest struct {
	Title       string   `json:"title"`
	DocumentIDs []string `json:"document_ids"`
}

type attachDocumentsRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parse, delegate to a service, map the error.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService, chatSvc service.ChatService) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	registerUploadRoutes(app, docSvc)
	registerDocumentRoutes(app, docSvc)
	registerConversationRoutes(app, chatSvc)
}

func registerUploadRoutes(app *fiber.App, docSvc service.DocumentService) {
	// Validate a planned upload and return its part plan
	app.Post("/uploads", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner header is required")
		}
		var req initUploadRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		plan, err := docSvc.InitializeUpload(c.UserContext(), owner, req.Filename, req.Size, req.ContentType)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(plan)
	})

	// Store one raw part. Upload identity travels in query parameters so the
	// body stays pure part bytes; started_at is unix seconds fixed by the
	// client, which makes retries land in the same session.
	app.Put("/uploads/parts", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		if owner == "" {
			return writeError(c, fiber.StatusBadRequest, "OWNER_REQUIRED", "owner header is required")
		}
		index, err := strconv.Atoi(c.Query("index", "-1"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INDEX", "invalid part index")
		}
		size, err := strconv.ParseInt(c.Query("size", "0"), 10, 64)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_SIZE", "invalid size")
		}
		startedAt, err := strconv.ParseInt(c.Query("started_at", "0"), 10, 64)
		if err != nil || startedAt <= 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_STARTED_AT", "invalid started_at")
		}

		meta := upload.PartMetadata{
			OwnerID:     owner,
			Filename:    c.Query("filename"),
			TotalSize:   size,
			ContentType: c.Query("content_type"),
			StartedAt:   time.Unix(startedAt, 0).UTC(),
		}
		sessionID, complete, err := docSvc.UploadPart(c.UserContext(), meta, index, c.Body())
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(uploadPartResponse{SessionID: sessionID, Complete: complete})
	})

	// Progress of an in-flight session
	app.Get("/uploads/:id/progress", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		progress, err := docSvc.UploadProgress(c.UserContext(), owner, c.Params("id"))
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(progress)
	})

	// Merge a complete session and run it through ingestion
	app.Post("/uploads/:id/complete", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		doc, err := docSvc.CompleteUpload(c.UserContext(), owner, c.Params("id"))
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	})

	// Abandon a session and discard its parts
	app.Delete("/uploads/:id", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		if err := docSvc.CancelUpload(c.UserContext(), owner, c.Params("id")); err != nil {
			return mapServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func registerDocumentRoutes(app *fiber.App, docSvc service.DocumentService) {
	// List documents endpoint with limit & offset
	app.Get("/documents", func(c *fiber.Ctx) error {
		owner := c.Get(OwnerHeader)
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := docSvc.List(c.UserContext(), owner, limit, offset)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(res)
	})

	// Get document by ID
	app.Get("/documents/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docSvc.Get(c.UserContext(), c.Get(OwnerHeader), id)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(doc)
	})

	// Presigned download URL for the document blob
	app.Get("/documents/:id/download", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		url, err := docSvc.DownloadURL(c.UserContext(), c.Get(OwnerHeader), id)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": url})
	})

	// Delete document by ID
	app.Delete("/documents/:id", func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docSvc.Delete(c.UserContext(), c.Get(OwnerHeader), id); err != nil {
			return mapServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func registerConversationRoutes(app *fiber.App, chatSvc service.ChatService) {
	app.Post("/conversations", func(c *fiber.Ctx) error {
		var req createConversationRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		conv, err := chatSvc.CreateConversation(c.UserContext(), c.Get(OwnerHeader), req.Title, req.DocumentIDs)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(conv)
	})

	app.Get("/conversations", func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}
		res, err := chatSvc.ListConversations(c.UserContext(), c.Get(OwnerHeader), limit, offset)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(res)
	})

	app.Get("/conversations/:id", func(c *fiber.Ctx) error {
		conv, err := chatSvc.GetConversation(c.UserContext(), c.Get(OwnerHeader), c.Params("id"))
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(conv)
	})

	app.Delete("/conversations/:id", func(c *fiber.Ctx) error {
		if err := chatSvc.DeleteConversation(c.UserContext(), c.Get(OwnerHeader), c.Params("id")); err != nil {
			return mapServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Replace the conversation's retrievable document set
	app.Put("/conversations/:id/documents", func(c *fiber.Ctx) error {
		var req attachDocumentsRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		conv, err := chatSvc.AttachDocuments(c.UserContext(), c.Get(OwnerHeader), c.Params("id"), req.DocumentIDs)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(conv)
	})

	// One chat turn
	app.Post("/conversations/:id/messages", func(c *fiber.Ctx) error {
		var req sendMessageRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		turn, err := chatSvc.SendMessage(c.UserContext(), c.Get(OwnerHeader), c.Params("id"), req.Content)
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(turn)
	})

	app.Get("/conversations/:id/memory", func(c *fiber.Ctx) error {
		stats, err := chatSvc.MemoryStats(c.UserContext(), c.Get(OwnerHeader), c.Params("id"))
		if err != nil {
			return mapServiceError(c, err)
		}
		return c.JSON(stats)
	})

	app.Post("/conversations/:id/memory/clear", func(c *fiber.Ctx) error {
		if err := chatSvc.ClearMemory(c.UserContext(), c.Get(OwnerHeader), c.Params("id")); err != nil {
			return mapServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
