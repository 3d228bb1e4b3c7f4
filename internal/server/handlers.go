package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cshekharsharma/filesync/internal/catalog"
	"github.com/cshekharsharma/filesync/internal/crdt"
	"github.com/cshekharsharma/filesync/internal/ferr"
	"github.com/cshekharsharma/filesync/internal/protocol"
	"github.com/cshekharsharma/filesync/internal/transfer"
)

type handlers struct {
	catalog *catalog.Catalog
	store   *transfer.Store
	manager *crdt.Manager
	hub     *hub
	log     *zap.Logger
}

func (h *handlers) registerRoutes(e *gin.Engine) {
	v1 := e.Group("/v1")
	v1.GET("/files", h.listFiles)
	v1.GET("/files/:name/info", h.fileInfo)
	v1.GET("/files/:name", h.download)
	v1.POST("/files/:name", h.upload)
	v1.GET("/heartbeat", h.heartbeat)
	v1.GET("/edit", h.editUpgrade)
}

func (h *handlers) listFiles(c *gin.Context) {
	recs, err := h.catalog.ListLiveFiles()
	if err != nil {
		writeError(c, err)
		return
	}
	files := make([]protocol.FileInfo, 0, len(recs))
	for _, r := range recs {
		files = append(files, protocol.FileInfo{Name: r.Name, Version: r.Version, Hash: r.Hash, Size: r.Size, Timestamp: r.Timestamp})
	}
	c.JSON(http.StatusOK, protocol.FileListResponse{Files: files})
}

func (h *handlers) fileInfo(c *gin.Context) {
	name := c.Param("name")
	rec, err := h.catalog.GetFile(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FileInfo{Name: rec.Name, Version: rec.Version, Hash: rec.Hash, Size: rec.Size, Timestamp: rec.Timestamp})
}

func (h *handlers) upload(c *gin.Context) {
	name := c.Param("name")
	dec := protocol.NewDecoder(c.Request.Body)
	rec, err := h.store.Upload(name, dec, time.Now().Unix())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, protocol.FileInfo{Name: rec.Name, Version: rec.Version, Hash: rec.Hash, Size: rec.Size, Timestamp: rec.Timestamp})
}

func (h *handlers) download(c *gin.Context) {
	name := c.Param("name")
	c.Status(http.StatusOK)
	c.Writer.Header().Set("Content-Type", "application/octet-stream")
	enc := protocol.NewEncoder(c.Writer)
	if err := h.store.Download(name, enc); err != nil {
		if fe, ok := err.(*ferr.Error); ok && fe.Kind == ferr.NotFound {
			c.Status(http.StatusNotFound)
			return
		}
		h.log.Error("download failed", zap.String("name", name), zap.Error(err))
	}
}

func (h *handlers) heartbeat(c *gin.Context) {
	c.JSON(http.StatusOK, protocol.HeartbeatResponse{Alive: true})
}

func writeError(c *gin.Context, err error) {
	if fe, ok := err.(*ferr.Error); ok && fe.Kind == ferr.NotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": fe.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
