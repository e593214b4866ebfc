package command

import (
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// inspectToken は署名検証なしでトークンの形と期限だけを確かめます。
// 検証自体はバックエンドの仕事で、ここでは設定ミスの早期警告だけを出します。
func inspectToken(token string) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		slog.Warn("command: api token is not a parseable JWT", "err", err)
		return
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		slog.Warn("command: api token is already expired", "expired_at", exp.Time)
	}
}
