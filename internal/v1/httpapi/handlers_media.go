package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// handleUpload stores the raw request body as a content-addressed blob.
// multipart/form-data uploads use the first "file" part instead.
func (s *Server) handleUpload(c *gin.Context) {
	maxBytes := s.core.Config().MaxUploadBytes

	var data []byte
	var mimeHint string
	if file, err := c.FormFile("file"); err == nil {
		if file.Size > maxBytes {
			renderError(c, apierr.PayloadTooLarge("upload exceeds %d bytes", maxBytes))
			return
		}
		f, err := file.Open()
		if err != nil {
			renderError(c, apierr.Wrap(apierr.KindInternal, err, "opening multipart file"))
			return
		}
		defer f.Close()
		if data, err = io.ReadAll(io.LimitReader(f, maxBytes+1)); err != nil {
			renderError(c, apierr.Wrap(apierr.KindInternal, err, "reading multipart file"))
			return
		}
		mimeHint = file.Header.Get("Content-Type")
	} else {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
		if err != nil {
			renderError(c, apierr.Wrap(apierr.KindInternal, err, "reading upload body"))
			return
		}
		data = body
		mimeHint = c.ContentType()
	}

	if int64(len(data)) > maxBytes {
		renderError(c, apierr.PayloadTooLarge("upload exceeds %d bytes", maxBytes))
		return
	}

	up, err := s.core.Upload(data, mimeHint)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, up)
}

func (s *Server) handleGetMedia(c *gin.Context) {
	mime, data, err := s.core.GetMedia(types.CidType(c.Param("cid")))
	if err != nil {
		renderError(c, err)
		return
	}
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, mime, data)
}

func (s *Server) handleStatMedia(c *gin.Context) {
	up, err := s.core.StatMedia(types.CidType(c.Param("cid")))
	if err != nil {
		c.Status(apierr.HTTPStatus(err))
		return
	}
	c.Header("Content-Type", up.MIME)
	c.Header("Content-Length", strconv.FormatInt(up.Bytes, 10))
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Status(http.StatusOK)
}
