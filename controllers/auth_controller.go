package controllers

import (
	"net/http"

	"rental-backend/access"
	"rental-backend/middleware"
	"rental-backend/services"
	"rental-backend/utils"

	"github.com/gin-gonic/gin"
)

// ---------------------------
// Payload / DTOs
// ---------------------------

type registerPayload struct {
	Username         string `json:"username"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	HasAcceptedTerms bool   `json:"has_accepted_terms"`
}

type loginPayload struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type updateUserPayload struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Telephone *string `json:"telephone"`
}

type completeProfilePayload struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Telephone string `json:"telephone" binding:"required,max=20"`
}

// ---------------------------
// Controller
// ---------------------------

type UserController struct {
	Users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{Users: users}
}

// Register (POST /auth/register)
func (ctrl *UserController) Register(c *gin.Context) {
	var p registerPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	u, err := ctrl.Users.Register(c.Request.Context(), services.RegisterInput{
		Username:         p.Username,
		Email:            p.Email,
		Password:         p.Password,
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		HasAcceptedTerms: p.HasAcceptedTerms,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusCreated, u)
}

// Login (POST /auth/login)
func (ctrl *UserController) Login(c *gin.Context) {
	var p loginPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	res, err := ctrl.Users.Login(c.Request.Context(), p.Email, p.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, res)
}

// Logout (POST /auth/logout)
func (ctrl *UserController) Logout(c *gin.Context) {
	if err := ctrl.Users.Logout(c.Request.Context(), middleware.BearerToken(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// VerifyEmail (GET /auth/verify-email?token=) redirects to the frontend when
// one is configured.
func (ctrl *UserController) VerifyEmail(c *gin.Context) {
	err := ctrl.Users.VerifyEmail(c.Request.Context(), c.Query("token"))
	if ctrl.Users.FrontendURL != "" {
		target := ctrl.Users.FrontendURL + "/login?verified=1"
		if err != nil {
			target = ctrl.Users.FrontendURL + "/login?verified=0"
		}
		c.Redirect(http.StatusFound, target)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"email_verified": true})
}

// Me (GET /users/me)
func (ctrl *UserController) Me(c *gin.Context) {
	u, err := ctrl.Users.Get(c.Request.Context(), middleware.PrincipalFrom(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, u)
}

// List (GET /users), superuser only.
func (ctrl *UserController) List(c *gin.Context) {
	p := listParams(c)
	rows, total, err := ctrl.Users.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondPage(c, rows, total, p)
}

func (ctrl *UserController) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !allowSelf(c, id) {
		return
	}
	u, err := ctrl.Users.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, u)
}

func (ctrl *UserController) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !allowSelf(c, id) {
		return
	}
	var p updateUserPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	u, err := ctrl.Users.Update(c.Request.Context(), id, services.UpdateUserInput{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Telephone: p.Telephone,
		Username:  p.Username,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, u)
}

// Delete (DELETE /users/:id) deactivates the account.
func (ctrl *UserController) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if !allowSelf(c, id) {
		return
	}
	if err := ctrl.Users.Deactivate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"is_active": false})
}

// CompleteProfile (PUT /users/complete-profile)
func (ctrl *UserController) CompleteProfile(c *gin.Context) {
	var p completeProfilePayload
	if err := c.ShouldBindJSON(&p); err != nil {
		respondBindError(c, err)
		return
	}
	u, err := ctrl.Users.CompleteProfile(c.Request.Context(), middleware.PrincipalFrom(c), services.CompleteProfileInput{
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Telephone: p.Telephone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	utils.JSONSuccess(c, http.StatusOK, gin.H{"user_status": u.Status})
}

func allowSelf(c *gin.Context, id uint) bool {
	if d := access.SelfOrSuperuser(id)(middleware.PrincipalFrom(c)); d != nil {
		utils.JSONError(c, http.StatusForbidden, d.Code, d.Message, d.Details)
		return false
	}
	return true
}

