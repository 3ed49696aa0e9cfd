// User HTTP handlers.
//
//   - POST /users
//   - GET  /users
//   - GET  /users/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-crm-backend/internal/domain"
)

// CreateUserRequest is the JSON payload for adding a staff user.
type CreateUserRequest struct {
	Name  string `json:"name" binding:"required" example:"Amy Lin"`
	Email string `json:"email" binding:"required" example:"amy@example.com"`
	// Role is one of admin, sales, support. Defaults to sales.
	Role string `json:"role,omitempty" example:"sales"`
}

// ListUsersResponse wraps the staff users.
type ListUsersResponse struct {
	Users []domain.User `json:"users"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Add a staff user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.CreateUserRequest  true  "User payload"
// @Success     201  {object} domain.User
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     409  {object} handlers.ErrorResponse "Email already used"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and email are required")
		return
	}
	u, err := h.users.Create(c.Request.Context(), req.Name, req.Email, req.Role)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// ListUsers godoc
// @ID          listUsers
// @Summary     List staff users
// @Tags        Users
// @Produce     json
// @Success     200  {object} handlers.ListUsersResponse
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: users})
}

// GetUser godoc
// @ID          getUser
// @Summary     Get a staff user
// @Tags        Users
// @Produce     json
// @Param       id  path  string  true  "User ID"
// @Success     200  {object} domain.User
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}
