package realtime

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/xela07ax/radar-bff/internal/domain"
	"github.com/xela07ax/radar-bff/internal/infra/auth"
	"go.uber.org/zap"
)

var ErrForbidden = errors.New("access denied")

const (
	appPrefix   = "/app"
	topicPrefix = "/topic/"

	headerXAuthorization = "X-Authorization"
	headerAuthorization  = "Authorization"
)

// Gate: допуск к realtime-транспорту.
// Аутентификация привязывается к сессии один раз (рукопожатие или CONNECT),
// авторизация проверяется на каждый SUBSCRIBE и SEND по назначению.
type Gate struct {
	validator auth.TokenValidator
	logger    *zap.Logger
}

func NewGate(v auth.TokenValidator, logger *zap.Logger) *Gate {
	return &Gate{validator: v, logger: logger.Named("gate")}
}

// Authenticate возвращает nil для пустого или невалидного токена:
// сессия продолжается анонимно.
func (g *Gate) Authenticate(token string) *domain.Identity {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	claims, err := g.validator.VerifyToken(token)
	if err != nil {
		g.logger.Warn("realtime token rejected", zap.Error(err))
		return nil
	}
	id := claims.Identity()
	g.logger.Info("realtime session authenticated",
		zap.String("subject", id.Subject),
		zap.Strings("authorities", id.Authorities))
	return id
}

// TokenFromRequest: токен рукопожатия: ?access_token= или Authorization.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("access_token"); t != "" {
		return t
	}
	return bearer(r.Header.Get(headerAuthorization))
}

// TokenFromFrame: токен из CONNECT: Authorization, затем X-Authorization.
func TokenFromFrame(f *frame.Frame) string {
	if v, ok := f.Header.Contains(headerAuthorization); ok {
		return bearer(v)
	}
	if v, ok := f.Header.Contains(headerXAuthorization); ok {
		return bearer(v)
	}
	return ""
}

func bearer(h string) string {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// AuthorizeSubscribe: правила подписки на топики брокера.
func AuthorizeSubscribe(id *domain.Identity, dest string) error {
	switch {
	case dest == TopicEcho:
		return nil
	case dest == TopicLastRadar, dest == TopicNotifications:
		if id.HasAnyRole(domain.RoleUser, domain.RoleAdmin) {
			return nil
		}
	case strings.HasPrefix(dest, TopicNotifications+"/"):
		owner := strings.TrimPrefix(dest, TopicNotifications+"/")
		if id != nil && (id.Subject == owner || id.HasAnyRole(domain.RoleAdmin)) {
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown destination %s", ErrForbidden, dest)
	}
	return fmt.Errorf("%w: %s", ErrForbidden, dest)
}

// AuthorizeSend: правила для SEND на /app/*.
func AuthorizeSend(id *domain.Identity, dest string) error {
	switch {
	case dest == appPrefix+"/echo":
		return nil
	case dest == appPrefix+"/notify", strings.HasPrefix(dest, appPrefix+"/notify-user/"):
		if id.HasAnyRole(domain.RoleUser, domain.RoleAdmin) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrForbidden, dest)
	default:
		return fmt.Errorf("%w: unknown destination %s", ErrForbidden, dest)
	}
}
