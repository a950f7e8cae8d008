package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yakoovad/reviewmate/internal/auth"
	"github.com/yakoovad/reviewmate/internal/realtime"
	"github.com/yakoovad/reviewmate/internal/repository"
	"github.com/yakoovad/reviewmate/internal/service"
	"github.com/yakoovad/reviewmate/pkg/logger"
)

type Handler struct {
	user   *service.UserService
	review *service.ReviewService
	batch  *service.BatchService

	hub           *realtime.Hub
	healthChecker HealthChecker
	clientOrigin  string

	logger *zap.Logger
}

func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.healthChecker = c
	return h
}

func (h *Handler) WithUserService(user *service.UserService) *Handler {
	h.user = user
	return h
}

func (h *Handler) WithReviewService(review *service.ReviewService) *Handler {
	h.review = review
	return h
}

func (h *Handler) WithBatchService(batch *service.BatchService) *Handler {
	h.batch = batch
	return h
}

func (h *Handler) WithHub(hub *realtime.Hub) *Handler {
	h.hub = hub
	return h
}

func (h *Handler) WithClientOrigin(origin string) *Handler {
	h.clientOrigin = origin
	return h
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(middleware.RequestID())
	e.Use(ZapLoggerMiddleware(h.logger))
	e.Use(middleware.Recover())

	corsConfig := middleware.DefaultCORSConfig
	if h.clientOrigin != "" {
		corsConfig.AllowOrigins = []string{h.clientOrigin}
	}
	e.Use(middleware.CORSWithConfig(corsConfig))

	e.GET("/health", h.healthChecker.HealthCheck())
	e.GET("/ws", h.ServeWebsocket)

	e.POST("/api/auth/register", h.Register)
	e.POST("/api/auth/login", h.Login)

	secured := e.Group("", AuthMiddleware(h.user))

	secured.PUT("/api/auth/token", h.UpdateGithubToken)

	secured.POST("/api/github/fetch-pr", h.FetchPR)

	secured.GET("/api/reviews", h.ListReviews)
	secured.GET("/api/reviews/analytics", h.Analytics)
	secured.POST("/api/reviews/batch", h.BatchImport)
	secured.GET("/api/reviews/:prId", h.GetReview)
	secured.DELETE("/api/reviews/:prId", h.DeleteReview)
}

func (h *Handler) Register(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email       string `json:"email" validate:"required,email"`
		Password    string `json:"password" validate:"required,min=8"`
		GithubToken string `json:"githubToken" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	l.Info("registering user", zap.String("email", req.Email))

	token, user, err := h.user.Register(e.Request().Context(), req.Email, req.Password, req.GithubToken)
	if err != nil {
		l.Error("failed to register user", zap.String("email", req.Email), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusCreated, echo.Map{"token": token, "user": user})
}

func (h *Handler) Login(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	token, user, err := h.user.Login(e.Request().Context(), req.Email, req.Password)
	if err != nil {
		l.Error("failed to log user in", zap.String("email", req.Email), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{"token": token, "user": user})
}

func (h *Handler) UpdateGithubToken(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		GithubToken string `json:"githubToken" validate:"required"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	user := currentUser(e)

	if err := h.user.UpdateGithubToken(e.Request().Context(), user.ID, req.GithubToken); err != nil {
		l.Error("failed to update github token", zap.String("user_id", user.ID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{"message": "GitHub token updated"})
}

func (h *Handler) FetchPR(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	var req struct {
		PRURL       string `json:"prUrl" validate:"required"`
		GithubToken string `json:"githubToken"`
	}

	if err := h.decodeRequest(e, &req); err != nil {
		l.Error("invalid request", zap.Any("error", err))
		return h.transportError(e, err)
	}

	user := currentUser(e)

	l.Info("fetching pull request", zap.String("pr_url", req.PRURL), zap.String("user_id", user.ID))

	review, action, err := h.review.Upsert(e.Request().Context(), user, req.PRURL, req.GithubToken)
	if err != nil {
		l.Error("failed to upsert pull request",
			zap.String("pr_url", req.PRURL),
			zap.String("user_id", user.ID),
			zap.Any("error", err))
		return h.transportError(e, err)
	}

	status := http.StatusOK
	if action == service.ActionCreated {
		status = http.StatusCreated
	}
	return e.JSON(status, review)
}

func (h *Handler) ListReviews(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	user := currentUser(e)
	filter := buildListFilter(e)

	reviews, err := h.review.List(e.Request().Context(), user.ID, filter)
	if err != nil {
		l.Error("failed to list reviews", zap.String("user_id", user.ID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, reviews)
}

func (h *Handler) Analytics(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	user := currentUser(e)

	analytics, err := h.review.Analytics(e.Request().Context(), user.ID)
	if err != nil {
		l.Error("failed to build analytics", zap.String("user_id", user.ID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, analytics)
}

func (h *Handler) BatchImport(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	fileHeader, err := e.FormFile("file")
	if err != nil {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "CSV file is required"))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "CSV file is required"))
	}
	defer file.Close()

	urls, err := service.ExtractPRURLs(file)
	if err != nil {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "Unable to parse CSV file"))
	}
	if len(urls) == 0 {
		return h.transportError(e, service.NewError(service.ErrorCodeInvalidBody, "No valid PR URLs found in CSV"))
	}

	user := currentUser(e)

	l.Info("starting batch import",
		zap.String("user_id", user.ID),
		zap.Int("total", len(urls)))

	ack := h.batch.Start(e.Request().Context(), user, urls)

	return e.JSON(http.StatusAccepted, ack)
}

func (h *Handler) GetReview(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	user := currentUser(e)
	prID := e.Param("prId")

	review, err := h.review.Get(e.Request().Context(), user.ID, prID)
	if err != nil {
		l.Error("failed to get review", zap.String("pr_id", prID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, review)
}

func (h *Handler) DeleteReview(e echo.Context) error {
	l := logger.FromContext(e.Request().Context())

	user := currentUser(e)
	prID := e.Param("prId")

	l.Info("deleting review", zap.String("pr_id", prID), zap.String("user_id", user.ID))

	if err := h.review.Delete(e.Request().Context(), user.ID, prID); err != nil {
		l.Error("failed to delete review", zap.String("pr_id", prID), zap.Any("error", err))
		return h.transportError(e, err)
	}

	return e.JSON(http.StatusOK, echo.Map{"message": "Review deleted", "prId": prID})
}

// ServeWebsocket authenticates the handshake and attaches the connection
// to the user's delivery scope.
func (h *Handler) ServeWebsocket(e echo.Context) error {
	token := e.QueryParam("token")
	if token == "" {
		return e.JSON(http.StatusUnauthorized, echo.Map{"message": "Auth token required"})
	}

	claims, err := auth.VerifyToken(token)
	if err != nil {
		return e.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid token"})
	}

	return h.hub.Serve(e.Response(), e.Request(), claims.Subject)
}

func buildListFilter(e echo.Context) *repository.ListFilter {
	filter := &repository.ListFilter{
		SortBy:   e.QueryParam("sortBy"),
		SortDesc: e.QueryParam("sortDir") != "asc",
	}

	if status := e.QueryParam("status"); status != "" && status != "all" {
		filter.Status = status
	}
	if priority := e.QueryParam("priority"); priority != "" && priority != "all" {
		filter.Priority = priority
	}
	if repo := e.QueryParam("repository"); repo != "" && repo != "all" {
		filter.Repository = repo
	}

	return filter
}

func (h *Handler) decodeRequest(e echo.Context, req any) *service.Error {
	if err := e.Bind(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "invalid request body")
	}

	if err := e.Validate(req); err != nil {
		return service.NewError(service.ErrorCodeInvalidBody, "request validation failed").
			WithDetails(errors.Wrap(err, "validation").Error())
	}
	return nil
}

func (h *Handler) transportError(e echo.Context, err *service.Error) error {
	response := struct {
		Error *service.Error `json:"error"`
	}{Error: err}

	switch err.Code {
	case service.ErrorCodeNotFound:
		return e.JSON(http.StatusNotFound, response)
	case service.ErrorCodeInvalidURL, service.ErrorCodeMissingCredential, service.ErrorCodeInvalidBody:
		return e.JSON(http.StatusBadRequest, response)
	case service.ErrorCodeUserExists:
		return e.JSON(http.StatusConflict, response)
	case service.ErrorCodeInvalidCredentials:
		return e.JSON(http.StatusUnauthorized, response)
	case service.ErrorCodeRemoteAPI:
		status := err.UpstreamStatus
		if status == 0 {
			status = http.StatusBadGateway
		}
		return e.JSON(status, response)
	case service.ErrorCodeRemoteProtocol:
		return e.JSON(http.StatusBadGateway, response)
	case service.ErrorCodeRemoteUnavailable:
		return e.JSON(http.StatusServiceUnavailable, response)
	default:
		return e.JSON(http.StatusInternalServerError, response)
	}
}
