package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/monocle-dev/crons/internal/auth"
	"github.com/monocle-dev/crons/internal/types"
)

func newContext(target string, params gin.Params) *gin.Context {
	gin.SetMode(gin.TestMode)

	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest("GET", target, nil)
	ctx.Params = params

	return ctx
}

func TestGetMonitorGUID(t *testing.T) {
	id := uuid.New()

	got, err := GetMonitorGUID(newContext("/", gin.Params{{Key: "monitor_id", Value: id.String()}}))
	if err != nil || got != id {
		t.Fatalf("GetMonitorGUID = %v, %v", got, err)
	}

	if _, err := GetMonitorGUID(newContext("/", gin.Params{{Key: "monitor_id", Value: "42"}})); err == nil {
		t.Fatal("expected error for non-uuid id")
	}
}

func TestGetQueryInt(t *testing.T) {
	n, err := GetQueryInt(newContext("/?limit=25", nil), "limit")
	if err != nil || n != 25 {
		t.Fatalf("GetQueryInt = %d, %v", n, err)
	}

	n, err = GetQueryInt(newContext("/", nil), "limit")
	if err != nil || n != 0 {
		t.Fatalf("GetQueryInt (absent) = %d, %v", n, err)
	}

	if _, err := GetQueryInt(newContext("/?limit=-1", nil), "limit"); err == nil {
		t.Fatal("expected error for negative limit")
	}
}

func TestGetPrincipal(t *testing.T) {
	ctx := newContext("/", nil)

	if _, err := GetPrincipal(ctx); err == nil {
		t.Fatal("expected error without principal")
	}

	ctx.Set(types.ContextPrincipalKey, auth.Principal{Kind: auth.PrincipalProjectKey, ProjectID: 3})

	p, err := GetPrincipal(ctx)
	if err != nil || p.ProjectID != 3 {
		t.Fatalf("GetPrincipal = %+v, %v", p, err)
	}
}
