package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// contextKeyUsername は認証済みユーザー名を格納するGinコンテキストのキー。
const contextKeyUsername = "username"

// SessionChecker はセッショントークンを検証する。
// 認証済みの場合はユーザー名とtrueを返す。
type SessionChecker interface {
	CheckSession(token string) (string, bool)
}

// SessionAuth はcookieNameのクッキーに格納されたセッショントークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "username" を設定する。
// 失敗理由は区別せず、常に同じ401レスポンスを返す。
func SessionAuth(cookieName string, checker SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil {
			token = ""
		}

		username, ok := checker.CheckSession(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "認証が必要です",
			})
			return
		}

		c.Set(contextKeyUsername, username)
		c.Next()
	}
}

// GetUsername はGinコンテキストから認証済みユーザー名を取得する。
// SessionAuthミドルウェアが事前に適用されている必要がある。
func GetUsername(c *gin.Context) string {
	username, _ := c.Get(contextKeyUsername)
	if name, ok := username.(string); ok {
		return name
	}
	return ""
}
