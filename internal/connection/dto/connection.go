package dto

type GoogleConnectRequest struct {
	Provider string `json:"provider" binding:"required,oneof=mail calendar drive"`
	Code     string `json:"code" binding:"required"`
}

type IMAPConnectRequest struct {
	Server   string `json:"server" binding:"required"`
	Port     int    `json:"port" binding:"required"`
	Username string `json:"username" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}
