package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/eduiitia-svg/eduiitia-backend/internal/mathexpr"
	"github.com/eduiitia-svg/eduiitia-backend/internal/middleware"
	"github.com/eduiitia-svg/eduiitia-backend/internal/repository"
	"github.com/eduiitia-svg/eduiitia-backend/internal/response"
	"github.com/eduiitia-svg/eduiitia-backend/internal/service"
	"github.com/eduiitia-svg/eduiitia-backend/internal/validator"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StudentPortalHandler handles student-facing endpoints: the test
// lobby, papers, results, history, leaderboard and the in-test
// calculator.
type StudentPortalHandler struct {
	testService    *service.TestService
	attemptService *service.AttemptService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(testService *service.TestService, attemptService *service.AttemptService) *StudentPortalHandler {
	return &StudentPortalHandler{
		testService:    testService,
		attemptService: attemptService,
	}
}

// GetLobby godoc
// GET /api/v1/student/lobby
// Returns the published tests with the student's attempt status.
func (h *StudentPortalHandler) GetLobby(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	lobby, err := h.testService.GetLobby(c.Request.Context(), claims.StudentID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if lobby == nil {
		lobby = []service.LobbyTest{}
	}

	response.Success(c, http.StatusOK, gin.H{"tests": lobby})
}

// GetTestPaper godoc
// GET /api/v1/student/tests/:test_id/paper
// Returns the safe question paper of a published test. Correct answers
// never appear in this payload.
func (h *StudentPortalHandler) GetTestPaper(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	paper, err := h.testService.GetPaper(c.Request.Context(), testID)
	if err != nil {
		if errors.Is(err, service.ErrTestNotAvailable) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"paper": paper})
}

// StartTest godoc
// POST /api/v1/student/tests/:test_id/start
// Opens (or resumes) the student's attempt on a published test.
// Idempotent: a second start returns the existing open attempt.
func (h *StudentPortalHandler) StartTest(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	start, err := h.attemptService.StartAttempt(c.Request.Context(), testID, claims.StudentID)
	if err != nil {
		if errors.Is(err, service.ErrTestNotAvailable) {
			response.Fail(c, http.StatusNotFound, response.ErrTestNotAvailable)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id":        start.AttemptID,
		"total_questions":   start.TotalQuestions,
		"remaining_seconds": int(start.Remaining.Seconds()),
		"answers":           start.Answers,
	})
}

// GetTestState godoc
// GET /api/v1/student/tests/:test_id/state
// Returns the saved answers and remaining time of the student's open
// attempt. Reload path for clients that lost their stream.
func (h *StudentPortalHandler) GetTestState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.attemptService.GetState(c.Request.Context(), testID, claims.StudentID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveAttempt)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"state": state})
}

// GetResult godoc
// GET /api/v1/student/attempts/:attempt_id/result
// Returns the graded result of the student's own submitted attempt.
func (h *StudentPortalHandler) GetResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	result, err := h.attemptService.GetResult(c.Request.Context(), attemptID, claims.StudentID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveAttempt) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetHistory godoc
// GET /api/v1/student/history
// Returns the student's submitted attempts, newest first, paginated.
func (h *StudentPortalHandler) GetHistory(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	entries, total, err := h.attemptService.GetHistory(c.Request.Context(), claims.StudentID, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if entries == nil {
		entries = []repository.AttemptHistoryEntry{}
	}

	totalPages := (total + perPage - 1) / perPage
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": entries}, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	})
}

// GetLeaderboard godoc
// GET /api/v1/student/tests/:test_id/leaderboard
// Returns the ranked submitted scores of a test.
func (h *StudentPortalHandler) GetLeaderboard(c *gin.Context) {
	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	entries, err := h.attemptService.GetLeaderboard(c.Request.Context(), testID, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if entries == nil {
		entries = []repository.LeaderboardEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"leaderboard": entries})
}

// CalculateRequest is the payload for the in-test calculator.
type CalculateRequest struct {
	Expression string `json:"expression" binding:"required,max=256"`
}

// Calculate godoc
// POST /api/v1/student/calculator
// Evaluates an arithmetic expression for the in-test calculator. The
// expression is parsed and computed locally; nothing is ever executed.
func (h *StudentPortalHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := mathexpr.Eval(req.Expression)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidExpr)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}
