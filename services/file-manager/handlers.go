package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pavitra93/go-multi-tenant-blog/shared/storage"
	"github.com/pavitra93/go-multi-tenant-blog/shared/tenancy"
	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// allowedImages maps accepted extensions to the content type stored with the object
var allowedImages = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

var errNotAnImage = utils.BadRequest("Only jpg, jpeg, png and gif images are allowed")

type fileDeps struct {
	store   storage.Storage
	maxSize int64
	now     func() time.Time
}

// UploadResponse is returned after a successful upload
type UploadResponse struct {
	URL string `json:"url"`
}

// objectKey places the file under the tenant schema prefix
func (d *fileDeps) objectKey(schema tenancy.Schema, ext string) string {
	return fmt.Sprintf("%s/image-%d-%d%s", schema, d.now().UnixMilli(), rand.IntN(1_000_000_000), ext)
}

// handleUpload stores one image from the multipart field "file"
func handleUpload(d *fileDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		schema, err := tenancy.SchemaFromContext(c.Request.Context())
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, d.maxSize)
		header, err := c.FormFile("file")
		if err != nil {
			utils.BadRequestResponse(c, fmt.Sprintf("A file of at most %d bytes is required", d.maxSize))
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		contentType, ok := allowedImages[ext]
		if !ok {
			utils.RespondError(c, errNotAnImage)
			return
		}

		file, err := header.Open()
		if err != nil {
			utils.RespondError(c, utils.Internal("Failed to read upload", err))
			return
		}
		defer file.Close()

		// the extension can lie, the first bytes cannot
		sniff := make([]byte, 512)
		n, _ := file.Read(sniff)
		if !strings.HasPrefix(http.DetectContentType(sniff[:n]), "image/") {
			utils.RespondError(c, errNotAnImage)
			return
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			utils.RespondError(c, utils.Internal("Failed to read upload", err))
			return
		}

		key := d.objectKey(schema, ext)
		url, err := d.store.Save(c.Request.Context(), key, file, contentType)
		if err != nil {
			utils.RespondError(c, utils.Internal("Failed to store file", err))
			return
		}

		logrus.WithFields(logrus.Fields{
			"tenant": schema,
			"key":    key,
			"size":   header.Size,
		}).Info("Image uploaded")
		utils.CreatedResponse(c, "File uploaded successfully", UploadResponse{URL: url})
	}
}
