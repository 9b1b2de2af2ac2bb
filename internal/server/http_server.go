package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"lxcdriver/internal/common"
	"lxcdriver/internal/driver"
	"lxcdriver/internal/executor"
	"lxcdriver/internal/lxc"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContainerManagerInterface 定义 HTTP 服务依赖的容器管理器接口
type ContainerManagerInterface interface {
	List(ctx context.Context) ([]string, error)
	Create(ctx context.Context, name, templatePath string, options map[string]string) (string, error)
	ShareFolders(ctx context.Context, name string, folders []driver.Folder) error
	Start(ctx context.Context, name string, customizations lxc.Customizations) error
	Halt(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error
	State(ctx context.Context, name string) (lxc.State, error)
	AssignedIP(ctx context.Context, name string) (string, error)
	CompressRootfs(ctx context.Context, name string) (string, error)
}

// HTTPServer 容器驱动 HTTP 服务器
type HTTPServer struct {
	server  *http.Server
	logger  *zap.Logger
	cm      ContainerManagerInterface
	metrics http.Handler
	limiter *rate.Limiter
}

// NewHTTPServer 创建新的 HTTP 服务器
func NewHTTPServer(cm ContainerManagerInterface, metrics http.Handler, config common.ServerConfig, logger *zap.Logger) *HTTPServer {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPServer{
		cm:      cm,
		logger:  logger,
		metrics: metrics,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Router 构建路由
func (s *HTTPServer) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics).Methods("GET")
	}

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/containers", s.handleListContainers).Methods("GET")
	v1.HandleFunc("/containers/{name}", s.handleGetContainer).Methods("GET")
	v1.HandleFunc("/containers/{name}/ip", s.handleAssignedIP).Methods("GET")

	mutating := v1.NewRoute().Subrouter()
	mutating.Use(s.rateLimitMiddleware)
	mutating.HandleFunc("/containers", s.handleCreateContainer).Methods("POST")
	mutating.HandleFunc("/containers/{name}", s.handleDestroyContainer).Methods("DELETE")
	mutating.HandleFunc("/containers/{name}/shared-folders", s.handleShareFolders).Methods("POST")
	mutating.HandleFunc("/containers/{name}/start", s.handleStart).Methods("POST")
	mutating.HandleFunc("/containers/{name}/halt", s.handleHalt).Methods("POST")
	mutating.HandleFunc("/containers/{name}/rootfs-archive", s.handleCompressRootfs).Methods("POST")

	return router
}

// Start 启动 HTTP 服务器
func (s *HTTPServer) Start(address string, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", address, port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting lxcdriver HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop 停止 HTTP 服务器
func (s *HTTPServer) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Stopping lxcdriver HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *HTTPServer) handleListContainers(w http.ResponseWriter, r *http.Request) {
	names, err := s.cm.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"containers": names,
	})
}

func (s *HTTPServer) handleCreateContainer(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Name     string            `json:"name"`
		Template string            `json:"template"`
		Options  map[string]string `json:"options"`
	}
	if !s.decode(w, r, &request) {
		return
	}
	if request.Template == "" {
		s.writeJSONResponse(w, http.StatusBadRequest, errorBody(common.NewValidationError("template", "cannot be empty", request.Template)))
		return
	}

	name, err := s.cm.Create(r.Context(), request.Name, request.Template, request.Options)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"name":  name,
		"state": lxc.StateStopped,
	})
}

func (s *HTTPServer) handleGetContainer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	state, err := s.cm.State(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if state == lxc.StateNotFound {
		status = http.StatusNotFound
	}
	s.writeJSONResponse(w, status, map[string]interface{}{
		"name":  name,
		"state": state,
	})
}

func (s *HTTPServer) handleDestroyContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.cm.Destroy(r.Context(), mux.Vars(r)["name"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleShareFolders(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Folders []driver.Folder `json:"folders"`
	}
	if !s.decode(w, r, &request) {
		return
	}
	name := mux.Vars(r)["name"]
	if err := s.cm.ShareFolders(r.Context(), name, request.Folders); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name":    name,
		"folders": len(request.Folders),
	})
}

func (s *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Customizations lxc.Customizations `json:"customizations"`
	}
	if !s.decodeOptional(w, r, &request) {
		return
	}
	name := mux.Vars(r)["name"]
	if err := s.cm.Start(r.Context(), name, request.Customizations); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name":  name,
		"state": lxc.StateRunning,
	})
}

func (s *HTTPServer) handleHalt(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.cm.Halt(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name":  name,
		"state": lxc.StateStopped,
	})
}

func (s *HTTPServer) handleAssignedIP(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ip, err := s.cm.AssignedIP(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"name": name,
		"ip":   ip,
	})
}

func (s *HTTPServer) handleCompressRootfs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	path, err := s.cm.CompressRootfs(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"name": name,
		"path": path,
	})
}

// decode 解析 JSON 请求体，失败时写入 400
func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSONResponse(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// decodeOptional 与 decode 相同，但允许空请求体（包括分块传输的空请求体）
func (s *HTTPServer) decodeOptional(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSONResponse(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body: " + err.Error(),
		})
		return false
	}
	return true
}

// statusFor 将错误映射为 HTTP 状态码
func statusFor(err error) int {
	var execErr *executor.ExecuteError
	var validationErr *common.ValidationError
	switch {
	case errors.Is(err, common.ErrContainerNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrSharedFolderCreateFailed):
		return http.StatusForbidden
	case errors.Is(err, common.ErrTransitionFailed):
		return http.StatusConflict
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &execErr):
		return http.StatusBadGateway
	}
	if kind, ok := common.KindOf(err); ok {
		switch kind {
		case common.KindNotFound:
			return http.StatusNotFound
		case common.KindPermission:
			return http.StatusForbidden
		case common.KindExecution:
			return http.StatusBadGateway
		}
	}
	return http.StatusInternalServerError
}

func errorBody(err error) map[string]interface{} {
	body := map[string]interface{}{"error": err.Error()}
	if kind, ok := common.KindOf(err); ok {
		body["kind"] = kind
	}
	return body
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	s.logger.Error("Request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err))
	s.writeJSONResponse(w, status, errorBody(err))
}

// loggingMiddleware 日志中间件
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		reqLogger := s.logger.With(zap.String("request_id", requestID))
		reqLogger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr))

		next.ServeHTTP(w, r.WithContext(common.ContextWithLogger(r.Context(), reqLogger)))

		reqLogger.Debug("HTTP response",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// rateLimitMiddleware 限制变更类请求的速率
func (s *HTTPServer) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.writeJSONResponse(w, http.StatusTooManyRequests, map[string]interface{}{
				"error": "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSONResponse 写入 JSON 响应
func (s *HTTPServer) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}
