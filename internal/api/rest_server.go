package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/annel0/voxel-server/internal/audit"
	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/middleware"
	"github.com/annel0/voxel-server/internal/network"
	"github.com/annel0/voxel-server/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// requestTimeout — сколько обработчик ждёт игровой цикл
const requestTimeout = 3 * time.Second

// GameControl — то, что REST API делает с игровым сервером.
// Реализуется *network.GameServer.
type GameControl interface {
	Players(ctx context.Context) ([]network.PlayerInfo, error)
	Kick(ctx context.Context, nick, reason string) (bool, error)
	Do(ctx context.Context, fn func(*network.State)) error
}

// WorldSaver сохраняет мир по запросу администратора
type WorldSaver interface {
	SaveNow(ctx context.Context) error
}

// Registry — регистр метрик, отдаваемый на /metrics
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// RestServer представляет REST API сервер
type RestServer struct {
	router    *gin.Engine
	http      *http.Server
	userRepo  auth.UserRepository
	game      GameControl
	positions storage.PositionRepo
	events    audit.Log
	saver     WorldSaver
	origin    string
	metrics   *ServerMetrics
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port          string               // адрес, например ":8088"
	UserRepo      auth.UserRepository  // учётные записи операторов
	Game          GameControl          // игровой сервер
	Positions     storage.PositionRepo // последние позиции игроков (может быть nil)
	Events        audit.Log            // архив событий (может быть nil)
	Saver         WorldSaver           // может быть nil
	AllowedOrigin string               // CORS; пусто — "*"
	Registry      Registry             // nil — метрики HTTP не собираются, /metrics из дефолтного регистра
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "*"
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	// === Observability middleware ===
	router.Use(otelgin.Middleware("voxel_rest"))
	router.Use(middleware.NewRequestLogger("/health", "/metrics").Handler())

	var reg prometheus.Registerer
	var gatherer prometheus.Gatherer
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw := middleware.NewPrometheusMiddleware("voxel_rest", reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	rs := &RestServer{
		router:    router,
		userRepo:  config.UserRepo,
		game:      config.Game,
		positions: config.Positions,
		events:    config.Events,
		saver:     config.Saver,
		origin:    config.AllowedOrigin,
		metrics:   NewServerMetrics(),
	}
	rs.http = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	rs.setupRoutes()
	return rs
}

// Handler возвращает http.Handler (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler { return rs.router }

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	rs.router.Use(rs.corsMiddleware())

	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")

	// Эндпоинт для аутентификации (без JWT защиты)
	api.POST("/auth/login", rs.handleLogin)

	// Защищенные эндпоинты (требуют JWT)
	protected := api.Group("/")
	protected.Use(rs.jwtMiddleware())
	{
		protected.GET("/server", rs.handleServerInfo)
		protected.GET("/players", rs.handlePlayers)
		protected.GET("/players/:nick/last", rs.handleLastPosition)
		protected.GET("/events", rs.handleEvents)

		admin := protected.Group("/")
		admin.Use(rs.adminMiddleware())
		{
			admin.POST("/world/save", rs.handleWorldSave)
			admin.GET("/world/block", rs.handleBlock)
			admin.POST("/players/:nick/kick", rs.handleKick)
		}
	}
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse представляет ответ на вход
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
	IsAdmin bool   `json:"is_admin,omitempty"`
}

// KickRequest — тело POST /api/players/:nick/kick
type KickRequest struct {
	Reason string `json:"reason"`
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, GenericResponse{Success: false, Message: msg})
}

func ok(c *gin.Context, msg string, data interface{}) {
	c.JSON(http.StatusOK, GenericResponse{Success: true, Message: msg, Data: data})
}

// handleLogin обрабатывает запрос на вход
func (rs *RestServer) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Message: "Неверный формат запроса"})
		return
	}

	user, err := rs.userRepo.ValidateCredentials(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, LoginResponse{Message: "Неверное имя пользователя или пароль"})
		return
	}
	if err != nil {
		logging.GetAPILogger().Error("проверка учётных данных %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Внутренняя ошибка сервера"})
		return
	}

	token, err := auth.GenerateJWT(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Message: "Ошибка генерации токена"})
		return
	}

	logging.GetAPILogger().Info("вход оператора %s с %s", user.Username, c.ClientIP())
	c.JSON(http.StatusOK, LoginResponse{
		Success: true,
		Token:   token,
		Message: "Успешная авторизация",
		IsAdmin: user.IsAdmin,
	})
}

// handleServerInfo возвращает состояние процесса и мира
func (rs *RestServer) handleServerInfo(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var sessions int
	var size [3]int
	err := rs.game.Do(ctx, func(st *network.State) {
		sessions = len(st.Players())
		size[0], size[1], size[2] = st.Grid().Size()
	})
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Игровой сервер недоступен")
		return
	}

	ok(c, "Информация о сервере", gin.H{
		"name":     "voxel-server",
		"status":   "running",
		"sessions": sessions,
		"world":    gin.H{"sx": size[0], "sy": size[1], "sz": size[2]},
		"process":  rs.metrics.Snapshot(),
	})
}

// handlePlayers возвращает список активных игроков
func (rs *RestServer) handlePlayers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	players, err := rs.game.Players(ctx)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Игровой сервер недоступен")
		return
	}
	ok(c, "Список игроков", gin.H{"players": players, "total": len(players)})
}

// handleLastPosition возвращает сохранённую позицию игрока
func (rs *RestServer) handleLastPosition(c *gin.Context) {
	if rs.positions == nil {
		fail(c, http.StatusNotImplemented, "Хранилище позиций не настроено")
		return
	}
	pos, found, err := rs.positions.Load(c.Request.Context(), c.Param("nick"))
	if err != nil {
		logging.GetAPILogger().Warn("загрузка позиции %s: %v", c.Param("nick"), err)
		fail(c, http.StatusInternalServerError, "Ошибка хранилища позиций")
		return
	}
	if !found {
		fail(c, http.StatusNotFound, "Позиция не сохранялась")
		return
	}
	ok(c, "Последняя позиция", pos)
}

// handleEvents возвращает последние события из архива
func (rs *RestServer) handleEvents(c *gin.Context) {
	if rs.events == nil {
		fail(c, http.StatusNotImplemented, "Архив событий не настроен")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(audit.DefaultLimit)))
	if err != nil {
		fail(c, http.StatusBadRequest, "Некорректный limit")
		return
	}
	events, err := rs.events.Recent(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		logging.GetAPILogger().Warn("чтение архива событий: %v", err)
		fail(c, http.StatusInternalServerError, "Ошибка архива событий")
		return
	}
	ok(c, "События", gin.H{"events": events, "total": len(events)})
}

// handleWorldSave сохраняет мир немедленно
func (rs *RestServer) handleWorldSave(c *gin.Context) {
	if rs.saver == nil {
		fail(c, http.StatusNotImplemented, "Сохранение не настроено")
		return
	}
	if err := rs.saver.SaveNow(c.Request.Context()); err != nil {
		logging.GetAPILogger().Error("сохранение мира: %v", err)
		fail(c, http.StatusInternalServerError, "Ошибка сохранения мира")
		return
	}
	ok(c, "Мир сохранён", nil)
}

// handleKick отключает игрока по нику
func (rs *RestServer) handleKick(c *gin.Context) {
	var req KickRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Неверный формат запроса")
			return
		}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = network.ReasonAdminKick
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	kicked, err := rs.game.Kick(ctx, c.Param("nick"), reason)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Игровой сервер недоступен")
		return
	}
	if !kicked {
		fail(c, http.StatusNotFound, "Игрок не найден")
		return
	}
	ok(c, "Игрок отключён", gin.H{"nick": c.Param("nick"), "reason": reason})
}

// handleBlock возвращает материал блока
func (rs *RestServer) handleBlock(c *gin.Context) {
	var xyz [3]int
	for i, key := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Query(key))
		if err != nil {
			fail(c, http.StatusBadRequest, "Некорректная координата "+key)
			return
		}
		xyz[i] = v
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	var mat int
	var inBounds bool
	var name string
	err := rs.game.Do(ctx, func(st *network.State) {
		g := st.Grid()
		if inBounds = g.InBounds(xyz[0], xyz[1], xyz[2]); inBounds {
			id := g.Get(xyz[0], xyz[1], xyz[2])
			mat, name = int(id), id.String()
		}
	})
	if err != nil {
		fail(c, http.StatusServiceUnavailable, "Игровой сервер недоступен")
		return
	}
	if !inBounds {
		fail(c, http.StatusBadRequest, "Координаты вне мира")
		return
	}
	ok(c, "Блок", gin.H{"x": xyz[0], "y": xyz[1], "z": xyz[2], "mat": mat, "name": name})
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокирует до Stop
func (rs *RestServer) Start() error {
	logging.GetAPILogger().Info("🌐 REST API слушает %s", rs.http.Addr)
	if err := rs.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает REST сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.http.Shutdown(ctx)
}
