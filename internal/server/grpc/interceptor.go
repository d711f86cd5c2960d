package grpc

import (
	"context"

	"github.com/dmitrijs2005/worldkeeper/internal/common"
	"github.com/dmitrijs2005/worldkeeper/internal/server/auth"
	"github.com/dmitrijs2005/worldkeeper/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// methodRoles lists, per authenticated method, the roles allowed to call
// it. Methods absent from the table (Login, Ping, health checks) are open.
var methodRoles = map[string][]models.Role{
	serviceName + "Register":      {models.RoleAdmin},
	serviceName + "UpdateRole":    {models.RoleAdmin},
	serviceName + "DeleteUser":    {models.RoleAdmin},
	serviceName + "ListUsers":     {models.RoleAdmin},
	serviceName + "Provision":     {models.RoleAdmin, models.RoleVisitor},
	serviceName + "Start":         {models.RoleAdmin},
	serviceName + "Stop":          {models.RoleAdmin},
	serviceName + "Deprovision":   {models.RoleAdmin},
	serviceName + "GetInstance":   {models.RoleAdmin, models.RoleVisitor},
	serviceName + "ListInstances": {models.RoleAdmin, models.RoleVisitor},
	serviceName + "ListRunning":   {models.RoleAdmin},
	serviceName + "UploadSave":    {models.RoleAdmin},
	serviceName + "DownloadSave":  {models.RoleAdmin, models.RoleVisitor},
	serviceName + "ListSaves":     {models.RoleAdmin, models.RoleVisitor},
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	roles, protected := methodRoles[info.FullMethod]
	if !protected {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := s.gate.Authorize(accessToken, roles...)
	if err != nil {
		return nil, statusFromError(err)
	}

	return handler(context.WithValue(ctx, claimsKey, claims), req)
}

// ClaimsFromContext returns the session claims the interceptor stored for
// an authenticated call.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// callerRole resolves the caller's role from the interceptor claims. A
// protected method reached without claims is a wiring bug, reported as an
// empty role which every service rejects.
func callerRole(ctx context.Context) models.Role {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return models.Role("")
	}
	return claims.Role
}
