// Package api административный REST сервер: здоровье, метрики, состояние
// пайплайна и чанков, чтение света и правка вокселей.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-light/internal/logging"
	"github.com/annel0/voxel-light/internal/middleware"
	"github.com/annel0/voxel-light/internal/vec"
	"github.com/annel0/voxel-light/internal/voxel"
	"github.com/annel0/voxel-light/internal/world"
)

// World операции менеджера мира, доступные через API
type World interface {
	Stats() world.Stats
	Status(cx, cz int) world.ChunkStatus
	RequestChunk(ctx context.Context, cx, cz int) error
	Unload(ctx context.Context, cx, cz int) error
	VoxelAt(vx, vy, vz int) (uint32, error)
	LightAt(vx, vy, vz int) ([4]uint32, error)
	UpdateVoxel(ctx context.Context, vx, vy, vz int, e world.Edit) (voxel.Delta, error)
	FlushLightUpdates(ctx context.Context) (int, error)
}

// RestServer REST API сервер
type RestServer struct {
	router  *gin.Engine
	world   World
	port    string
	metrics *ServerMetrics
	server  *http.Server
}

// Config конфигурация REST сервера
type Config struct {
	Port       string // адрес вида ":8088"
	World      World
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// NewRestServer создаёт сервер и настраивает маршруты
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(otelgin.Middleware("voxel_admin"))
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("voxel_admin", config.Registerer)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	rs := &RestServer{
		router:  router,
		world:   config.World,
		port:    config.Port,
		metrics: NewServerMetrics(),
	}
	rs.setupRoutes()
	return rs
}

// Handler для тестов и встраивания
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/chunks/:name", rs.handleChunkStatus)
		api.POST("/chunks/:name", rs.handleLoadChunk)
		api.DELETE("/chunks/:name", rs.handleUnloadChunk)
		api.GET("/voxels", rs.handleGetVoxel)
		api.POST("/voxels", rs.handleUpdateVoxel)
		api.POST("/light/flush", rs.handleFlush)
	}
}

// GenericResponse общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// VoxelRequest тело POST /api/voxels
type VoxelRequest struct {
	X        int             `json:"x"`
	Y        int             `json:"y"`
	Z        int             `json:"z"`
	ID       uint32          `json:"id"`
	Rotation *voxel.Rotation `json:"rotation,omitempty"`
	Stage    *uint32         `json:"stage,omitempty"`
}

// VoxelResponse воксель с уровнями света
type VoxelResponse struct {
	X        int               `json:"x"`
	Y        int               `json:"y"`
	Z        int               `json:"z"`
	ID       uint32            `json:"id"`
	Rotation voxel.Rotation    `json:"rotation"`
	Stage    uint32            `json:"stage"`
	Light    map[string]uint32 `json:"light"`
}

func (rs *RestServer) handleHealth(c *gin.Context) {
	cpuPercent, _ := rs.metrics.GetCPUUsage()
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"time":        time.Now().Unix(),
		"uptime":      rs.metrics.GetUptime(),
		"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
		"memory":      rs.metrics.GetMemoryStats(),
	})
}

func (rs *RestServer) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: rs.world.Stats()})
}

func (rs *RestServer) chunkParam(c *gin.Context) (vec.Vec2, bool) {
	coords, err := vec.ParseChunkName(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: err.Error()})
		return vec.Vec2{}, false
	}
	return coords, true
}

func (rs *RestServer) handleChunkStatus(c *gin.Context) {
	coords, ok := rs.chunkParam(c)
	if !ok {
		return
	}
	st := rs.world.Status(coords.X, coords.Z)
	if !st.Loaded {
		c.JSON(http.StatusNotFound, GenericResponse{Success: false, Message: "чанк не загружен", Data: st})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: st})
}

func (rs *RestServer) handleLoadChunk(c *gin.Context) {
	coords, ok := rs.chunkParam(c)
	if !ok {
		return
	}
	if err := rs.world.RequestChunk(c.Request.Context(), coords.X, coords.Z); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, GenericResponse{Success: true, Message: "чанк запрошен", Data: rs.world.Status(coords.X, coords.Z)})
}

func (rs *RestServer) handleUnloadChunk(c *gin.Context) {
	coords, ok := rs.chunkParam(c)
	if !ok {
		return
	}
	if err := rs.world.Unload(c.Request.Context(), coords.X, coords.Z); err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "чанк выгружен"})
}

func (rs *RestServer) handleGetVoxel(c *gin.Context) {
	var pos [3]int
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(key))
		if err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "неверная координата " + key})
			return
		}
		pos[i] = v
	}

	raw, err := rs.world.VoxelAt(pos[0], pos[1], pos[2])
	if err != nil {
		rs.fail(c, err)
		return
	}
	levels, err := rs.world.LightAt(pos[0], pos[1], pos[2])
	if err != nil {
		rs.fail(c, err)
		return
	}

	resp := VoxelResponse{
		X: pos[0], Y: pos[1], Z: pos[2],
		ID:       voxel.ExtractID(raw),
		Rotation: voxel.ExtractRotation(raw),
		Stage:    voxel.ExtractStage(raw),
		Light:    make(map[string]uint32, len(voxel.Colors)),
	}
	for i, color := range voxel.Colors {
		resp.Light[color.String()] = levels[i]
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: resp})
}

func (rs *RestServer) handleUpdateVoxel(c *gin.Context) {
	var req VoxelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{Success: false, Message: "Неверный формат запроса: " + err.Error()})
		return
	}

	d, err := rs.world.UpdateVoxel(c.Request.Context(), req.X, req.Y, req.Z, world.Edit{
		ID: req.ID, Rotation: req.Rotation, Stage: req.Stage,
	})
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "воксель изменён", Data: d})
}

func (rs *RestServer) handleFlush(c *gin.Context) {
	jobs, err := rs.world.FlushLightUpdates(c.Request.Context())
	if err != nil {
		rs.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: "ok", Data: gin.H{"jobs": jobs}})
}

// fail переводит ошибки мира в HTTP статус
func (rs *RestServer) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, world.ErrOutsideWorld), errors.Is(err, world.ErrOutOfBounds):
		status = http.StatusBadRequest
	case errors.Is(err, world.ErrChunkNotLoaded):
		status = http.StatusNotFound
	case errors.Is(err, world.ErrChunkBusy):
		status = http.StatusConflict
	default:
		logging.Error("api %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, GenericResponse{Success: false, Message: err.Error()})
}

// Run обслуживает запросы до отмены ctx
func (rs *RestServer) Run(ctx context.Context) error {
	rs.server = &http.Server{Addr: rs.port, Handler: rs.router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- rs.server.ListenAndServe() }()
	logging.Info("REST API listening on %s", rs.port)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return rs.server.Shutdown(shutdownCtx)
	}
}
